package dsp

import (
	"math"
	"sync"
	"sync/atomic"
)

// Oscillator is a numerically controlled complex oscillator that rotates with a settable
// frequency at a settable sample rate. A negative frequency rotates clockwise.
//
// Frequency and sample rate may be changed from any goroutine. The phase is owned by the
// goroutine that calls Rotate or Translate; only one such goroutine must use the oscillator.
type Oscillator struct {
	lock       sync.Mutex
	frequency  atomic.Int64
	sampleRate atomic.Int64
	step       atomic.Uint64 // phase increment in cycles per sample, as float64 bits

	phase      float64
	inphase    float32
	quadrature float32
}

// NewOscillator returns a new oscillator with the given frequency and sample rate in Hz.
func NewOscillator(frequency int64, sampleRate int) *Oscillator {
	result := &Oscillator{
		inphase: 1,
	}
	result.frequency.Store(frequency)
	result.sampleRate.Store(int64(sampleRate))
	result.updateStep()
	return result
}

// SetFrequency sets the frequency of the oscillator in Hz.
func (o *Oscillator) SetFrequency(frequency int64) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.frequency.Store(frequency)
	o.updateStep()
}

// SetSampleRate sets the sample rate in Hz at which the oscillator is rotated.
func (o *Oscillator) SetSampleRate(sampleRate int) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.sampleRate.Store(int64(sampleRate))
	o.updateStep()
}

func (o *Oscillator) Frequency() int64 {
	return o.frequency.Load()
}

func (o *Oscillator) SampleRate() int {
	return int(o.sampleRate.Load())
}

func (o *Oscillator) updateStep() {
	var step float64
	sampleRate := o.sampleRate.Load()
	if sampleRate > 0 {
		step = float64(o.frequency.Load()) / float64(sampleRate)
	}
	o.step.Store(math.Float64bits(step))
}

// Rotate advances the oscillator by one sample.
func (o *Oscillator) Rotate() {
	step := math.Float64frombits(o.step.Load())
	o.phase = math.Mod(o.phase+step, 1)
	if o.phase < 0 {
		o.phase += 1
	}
	sin, cos := math.Sincos(2 * math.Pi * o.phase)
	o.inphase = float32(cos)
	o.quadrature = float32(sin)
}

// Inphase is the current real component of the oscillator.
func (o *Oscillator) Inphase() float32 {
	return o.inphase
}

// Quadrature is the current imaginary component of the oscillator.
func (o *Oscillator) Quadrature() float32 {
	return o.quadrature
}

// Translate multiplies every complex sample of src with the oscillator, rotating the
// oscillator by one step per sample. The result is written to dst, which must have at least
// the length of src. dst and src may be the same slice.
// Each sample is multiplied with the current phase before the oscillator advances.
func (o *Oscillator) Translate(dst, src []float32) {
	for i := 0; i+1 < len(src); i += 2 {
		inphase := src[i]
		quadrature := src[i+1]
		dst[i] = inphase*o.inphase - quadrature*o.quadrature
		dst[i+1] = quadrature*o.inphase + inphase*o.quadrature
		o.Rotate()
	}
}
