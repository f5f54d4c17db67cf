package monitor

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftl/channelizer/dsp"
	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/tuner"
)

const (
	powerStream    scope.StreamID = "power"
	queueStream    scope.StreamID = "queue"
	spectrumStream scope.StreamID = "spectrum"

	centerMarker scope.MarkerID = "center"
	peakMarker   scope.MarkerID = "peak"

	powerMeanLength   = 20
	spectrumBlockSize = 512
)

// Probe sits between a channel source and its consumer and keeps the statistics of the channel.
// The decimated samples and the frequency change events are passed on unchanged.
type Probe struct {
	monitor     *Monitor
	source      *tuner.ChannelSource
	nextSamples sample.Listener
	nextEvents  frequency.Listener

	heartbeats     atomic.Int64
	buffers        atomic.Int64
	overflows      atomic.Int64
	tunerEvents    atomic.Int64
	channelEvents  atomic.Int64
	lastTunerEvent atomic.Pointer[frequency.Event]
	lastEvent      atomic.Pointer[frequency.Event]
	powerdB        atomic.Uint64

	// owned by the decimation goroutine
	power          *dsp.RollingMean[float32]
	spectrum       *dsp.Spectrum[float64]
	spectrumValues []float64
	pending        []float64
	lastTimeFrame  time.Time
	lastSpectrum   time.Time

	sampleRateLock sync.Mutex
	sampleRate     int
}

func newProbe(monitor *Monitor, source *tuner.ChannelSource, nextSamples sample.Listener, nextEvents frequency.Listener) *Probe {
	result := &Probe{
		monitor:        monitor,
		source:         source,
		nextSamples:    nextSamples,
		nextEvents:     nextEvents,
		power:          dsp.NewRollingMean[float32](powerMeanLength),
		spectrum:       dsp.NewSpectrum[float64](spectrumBlockSize, dsp.Blackman),
		spectrumValues: make([]float64, spectrumBlockSize),
		pending:        make([]float64, 0, 2*spectrumBlockSize),
		sampleRate:     source.SampleRate(),
	}
	result.powerdB.Store(math.Float64bits(minimumPowerdB))
	return result
}

func (p *Probe) attach() {
	p.source.SetListener(p)
	p.source.SetFrequencyChangeListener(p)
	p.source.SetFrequencyObserver(&tunerObserver{probe: p})
	p.source.SetOverflowListener(p)
	p.source.SetHeartbeatListener(p)
}

func (p *Probe) detach() {
	p.source.RemoveHeartbeatListener()
	p.source.SetOverflowListener(nil)
	p.source.SetFrequencyObserver(nil)
	p.source.RemoveFrequencyChangeListener()
	p.source.RemoveListener()
}

func (p *Probe) Source() *tuner.ChannelSource {
	return p.source
}

func (p *Probe) Receive(buffer *sample.ComplexBuffer) {
	p.buffers.Add(1)
	samples := buffer.Samples()

	power := p.power.Put(dsp.Power(samples))
	p.powerdB.Store(math.Float64bits(toDB(float64(power))))

	p.collectSpectrum(samples)

	if p.nextSamples != nil {
		p.nextSamples.Receive(buffer)
	}
}

func (p *Probe) collectSpectrum(samples []float32) {
	for _, s := range samples {
		p.pending = append(p.pending, float64(s))
		if len(p.pending) < 2*spectrumBlockSize {
			continue
		}

		now := p.monitor.clock()
		if now.Sub(p.lastSpectrum) >= p.monitor.frameInterval {
			p.lastSpectrum = now
			p.showSpectrum(now)
		}
		p.pending = p.pending[:0]
	}
}

func (p *Probe) showSpectrum(now time.Time) {
	p.spectrum.IQToSpectrum(p.spectrumValues, p.pending, dsp.MagnitudeIndB[float64])

	centerFrequency := float64(p.source.Frequency())
	sampleRate := p.currentSampleRate()
	peak := dsp.PeakBin(p.spectrumValues)
	values := make([]float64, len(p.spectrumValues))
	copy(values, p.spectrumValues)

	p.monitor.scope.ShowSpectralFrame(&scope.SpectralFrame{
		Frame:         scope.Frame{Stream: spectrumStream, Timestamp: now},
		FromFrequency: centerFrequency - float64(sampleRate)/2,
		ToFrequency:   centerFrequency + float64(sampleRate)/2,
		Values:        values,
		FrequencyMarkers: map[scope.MarkerID]float64{
			centerMarker: centerFrequency,
			peakMarker:   centerFrequency + dsp.BinFrequency(peak, spectrumBlockSize, sampleRate),
		},
		MagnitudeMarkers: map[scope.MarkerID]float64{
			peakMarker: p.spectrumValues[peak],
		},
	})
}

func (p *Probe) Heartbeat() {
	p.heartbeats.Add(1)

	now := p.monitor.clock()
	if now.Sub(p.lastTimeFrame) < p.monitor.frameInterval {
		return
	}
	p.lastTimeFrame = now

	channelID := scope.ChannelID(p.source.ID().String())
	p.monitor.scope.ShowTimeFrame(&scope.TimeFrame{
		Frame:  scope.Frame{Stream: powerStream, Timestamp: now},
		Values: map[scope.ChannelID]float64{channelID: p.PowerdB()},
	})
	p.monitor.scope.ShowTimeFrame(&scope.TimeFrame{
		Frame:  scope.Frame{Stream: queueStream, Timestamp: now},
		Values: map[scope.ChannelID]float64{channelID: float64(p.source.QueueLen())},
	})
}

func (p *Probe) SourceOverflow(overflow bool) {
	if overflow {
		p.overflows.Add(1)
	}
}

// FrequencyChanged receives the events that the channel source sends to its consumer.
func (p *Probe) FrequencyChanged(event frequency.Event) {
	p.channelEvents.Add(1)
	p.lastEvent.Store(&event)
	if event.Kind == frequency.SampleRateChanged {
		p.sampleRateLock.Lock()
		p.sampleRate = int(event.Value)
		p.sampleRateLock.Unlock()
	}

	if p.nextEvents != nil {
		p.nextEvents.FrequencyChanged(event)
	}
}

func (p *Probe) currentSampleRate() int {
	p.sampleRateLock.Lock()
	defer p.sampleRateLock.Unlock()
	return p.sampleRate
}

func (p *Probe) PowerdB() float64 {
	return math.Float64frombits(p.powerdB.Load())
}

// Status returns a snapshot of the channel's statistics.
func (p *Probe) Status() ChannelStatus {
	channel := p.source.Channel()
	result := ChannelStatus{
		ID:              p.source.ID().String(),
		Frequency:       channel.Frequency,
		Band:            bandName(channel.Frequency),
		Bandwidth:       channel.Bandwidth,
		SampleRate:      p.source.SampleRate(),
		TunerSampleRate: p.source.TunerSampleRate(),
		Decimation:      p.source.Decimation(),
		MixerFrequency:  p.source.MixerFrequency(),
		Correction:      p.source.FrequencyCorrection(),
		State:           p.source.State().String(),
		QueueLength:     p.source.QueueLen(),
		Overflow:        p.source.Overflow(),
		Overflows:       p.overflows.Load(),
		Heartbeats:      p.heartbeats.Load(),
		Buffers:         p.buffers.Load(),
		TunerEvents:     p.tunerEvents.Load(),
		ChannelEvents:   p.channelEvents.Load(),
		PowerdB:         p.PowerdB(),
	}
	if event := p.lastEvent.Load(); event != nil {
		result.LastEvent = event.String()
	}
	if event := p.lastTunerEvent.Load(); event != nil {
		result.LastTunerEvent = event.String()
	}
	return result
}

// tunerObserver counts the events that the tuner sends to the channel source. It is a separate
// type because the probe already receives the channel's own events.
type tunerObserver struct {
	probe *Probe
}

func (o *tunerObserver) FrequencyChanged(event frequency.Event) {
	o.probe.tunerEvents.Add(1)
	o.probe.lastTunerEvent.Store(&event)
}

const minimumPowerdB = -200.0

func toDB(power float64) float64 {
	if power <= 0 {
		return minimumPowerdB
	}
	return max(minimumPowerdB, 10*math.Log10(power))
}
