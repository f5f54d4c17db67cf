// Package sim provides a simulated tuner that produces synthetic tones plus gaussian noise.
package sim

import (
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ftl/channelizer/dsp"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/tuner"
)

// Signal is a continuous carrier at an absolute frequency.
type Signal struct {
	Frequency int64
	Amplitude float32
}

type tone struct {
	signal     Signal
	oscillator *dsp.Oscillator
}

// Tuner generates wideband samples and feeds them to its channel sources.
type Tuner struct {
	*tuner.Feed

	lock      sync.Mutex
	tones     []tone
	noise     distuv.Normal
	remainder float64

	close  chan struct{}
	closed chan struct{}
}

func New(frequency int64, sampleRate int, config tuner.Config, signals ...Signal) *Tuner {
	result := &Tuner{
		Feed: tuner.NewFeed(frequency, sampleRate, config),
		noise: distuv.Normal{
			Mu:  0,
			Src: rand.NewPCG(uint64(frequency), uint64(sampleRate)),
		},
	}
	result.SetSignals(signals...)
	return result
}

func (t *Tuner) SetSignals(signals ...Signal) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tones = make([]tone, 0, len(signals))
	for _, signal := range signals {
		t.tones = append(t.tones, tone{
			signal:     signal,
			oscillator: dsp.NewOscillator(0, 0),
		})
	}
}

// SetNoise sets the standard deviation of the noise on each of the I and Q components.
func (t *Tuner) SetNoise(sigma float64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.noise.Sigma = sigma
}

// Generate returns the next count complex samples.
func (t *Tuner) Generate(count int) *sample.ComplexBuffer {
	t.lock.Lock()
	defer t.lock.Unlock()

	centerFrequency, _ := t.Frequency()
	sampleRate, _ := t.SampleRate()

	samples := make([]float32, 2*count)
	for _, tone := range t.tones {
		offset := tone.signal.Frequency - centerFrequency
		if tone.oscillator.Frequency() != offset {
			tone.oscillator.SetFrequency(offset)
		}
		if tone.oscillator.SampleRate() != sampleRate {
			tone.oscillator.SetSampleRate(sampleRate)
		}
		for i := 0; i < len(samples); i += 2 {
			samples[i] += tone.signal.Amplitude * tone.oscillator.Inphase()
			samples[i+1] += tone.signal.Amplitude * tone.oscillator.Quadrature()
			tone.oscillator.Rotate()
		}
	}
	if t.noise.Sigma > 0 {
		for i := range samples {
			samples[i] += float32(t.noise.Rand())
		}
	}

	return sample.NewComplexBuffer(samples)
}

// Emit generates count complex samples and passes them to all sample listeners.
func (t *Tuner) Emit(count int) {
	t.Receive(t.Generate(count))
}

// samplesPerPeriod returns the number of complex samples that cover the given period and keeps
// the fraction for the next call.
func (t *Tuner) samplesPerPeriod(period time.Duration) int {
	sampleRate, err := t.SampleRate()
	if err != nil {
		return 0
	}
	exact := float64(sampleRate)*period.Seconds() + t.remainder
	count := int(exact)
	t.remainder = exact - float64(count)
	return count
}

// Start emitting samples in real time, one buffer per period.
func (t *Tuner) Start(period time.Duration) {
	if t.close != nil {
		log.Printf("simulation is already running")
		return
	}
	t.close = make(chan struct{})
	t.closed = make(chan struct{})

	go func() {
		defer close(t.closed)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-t.close:
				return
			case <-ticker.C:
				count := t.samplesPerPeriod(period)
				if count > 0 {
					t.Emit(count)
				}
			}
		}
	}()
}

func (t *Tuner) Close() {
	if t.close == nil {
		return
	}
	select {
	case <-t.close:
		return
	default:
		close(t.close)
		<-t.closed
	}
}
