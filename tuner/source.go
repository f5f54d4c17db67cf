package tuner

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ftl/channelizer/dsp"
	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/schedule"
)

// ChannelSource extracts one channel from the wideband sample stream of a tuner and provides it
// as a stream of complex samples at the channel rate.
//
// A channel source can only be used once: after Stop it is expended and a new one must be
// requested from the tuner, since the tuner may have been retuned in the meantime.
type ChannelSource struct {
	id         uuid.UUID
	tuner      Tuner
	controller Controller
	channel    Channel
	config     Config

	lifecycle sync.Mutex
	state     atomic.Int32
	task      schedule.Task
	disposed  bool

	lock            sync.Mutex
	tunerFrequency  int64
	tunerSampleRate int
	correction      int64
	listener        sample.Listener

	oscillator *dsp.Oscillator
	filter     atomic.Pointer[dsp.DecimationFilter]
	queue      *sample.OverflowQueue
	processor  *processor
	downstream *downstream

	observer  atomic.Pointer[frequencyListenerSlot]
	heartbeat atomic.Pointer[heartbeatSlot]
}

type frequencyListenerSlot struct {
	listener frequency.Listener
}

type heartbeatSlot struct {
	listener HeartbeatListener
}

// NewChannelSource creates a new channel source for the given channel of the given tuner.
// The channel source registers itself as frequency listener with the tuner's controller right
// away; it only starts to consume samples after Start.
func NewChannelSource(tuner Tuner, channel Channel, config Config) (*ChannelSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	controller := tuner.Controller()
	tunerFrequency, err := controller.Frequency()
	if err != nil {
		return nil, errors.Wrapf(ErrTunerUnavailable, "cannot read the tuner frequency: %v", err)
	}
	tunerSampleRate, err := controller.SampleRate()
	if err != nil {
		return nil, errors.Wrapf(ErrTunerUnavailable, "cannot read the tuner sample rate: %v", err)
	}

	filter, err := dsp.NewDecimationFilter(tunerSampleRate, config.FilterConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decimate %dHz to %dHz", tunerSampleRate, config.ChannelRate)
	}

	result := &ChannelSource{
		id:              uuid.New(),
		tuner:           tuner,
		controller:      controller,
		channel:         channel,
		config:          config,
		tunerFrequency:  tunerFrequency,
		tunerSampleRate: tunerSampleRate,
		oscillator:      dsp.NewOscillator(tunerFrequency-channel.Frequency, tunerSampleRate),
		queue:           sample.NewOverflowQueue(config.QueueCapacity, config.ResetThreshold),
	}
	result.filter.Store(filter)
	result.downstream = &downstream{source: result}
	result.processor = newProcessor(result)

	controller.AddFrequencyListener(result)

	return result, nil
}

func (s *ChannelSource) ID() uuid.UUID {
	return s.id
}

func (s *ChannelSource) Channel() Channel {
	return s.channel
}

// Frequency is the center frequency of the channel.
func (s *ChannelSource) Frequency() int64 {
	return s.channel.Frequency
}

// SampleRate is the rate of the decimated channel.
func (s *ChannelSource) SampleRate() int {
	return s.config.ChannelRate
}

// FrequencyCorrection is the currently applied frequency correction in Hz.
func (s *ChannelSource) FrequencyCorrection() int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.correction
}

// MixerFrequency is the frequency of the oscillator that shifts the channel to baseband.
func (s *ChannelSource) MixerFrequency() int64 {
	return s.oscillator.Frequency()
}

// TunerSampleRate is the wideband sample rate the channel source is currently set up for.
func (s *ChannelSource) TunerSampleRate() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tunerSampleRate
}

// Decimation returns the decimation factor of the current filter.
func (s *ChannelSource) Decimation() int {
	return s.filter.Load().Decimation()
}

func (s *ChannelSource) State() State {
	return State(s.state.Load())
}

// QueueLen is the number of wideband buffers waiting for decimation.
func (s *ChannelSource) QueueLen() int {
	return s.queue.Len()
}

// Overflow indicates if the channel source currently drops wideband buffers.
func (s *ChannelSource) Overflow() bool {
	return s.queue.Overflow()
}

// SetListener sets the consumer of the decimated samples. The listener is kept when the
// decimation filter is rebuilt because of a sample rate change.
func (s *ChannelSource) SetListener(listener sample.Listener) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.listener = listener
	s.filter.Load().SetListener(listener)
}

func (s *ChannelSource) RemoveListener() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.listener = nil
	s.filter.Load().RemoveListener()
}

// SetFrequencyChangeListener sets the listener for the frequency change events of this channel source.
func (s *ChannelSource) SetFrequencyChangeListener(listener frequency.Listener) {
	s.downstream.setListener(listener)
}

func (s *ChannelSource) RemoveFrequencyChangeListener() {
	s.downstream.setListener(nil)
}

// FrequencyChangeRequests returns the listener that accepts change requests from the consumer.
// Only CorrectionChangeRequested is supported.
func (s *ChannelSource) FrequencyChangeRequests() frequency.Listener {
	return s.downstream
}

// SetFrequencyObserver sets a listener that receives a copy of every frequency change event
// that the tuner sends to this channel source.
func (s *ChannelSource) SetFrequencyObserver(listener frequency.Listener) {
	if listener == nil {
		s.observer.Store(nil)
		return
	}
	s.observer.Store(&frequencyListenerSlot{listener: listener})
}

func (s *ChannelSource) SetOverflowListener(listener sample.OverflowListener) {
	s.queue.SetOverflowListener(listener)
}

func (s *ChannelSource) SetHeartbeatListener(listener HeartbeatListener) {
	if listener == nil {
		s.heartbeat.Store(nil)
		return
	}
	s.heartbeat.Store(&heartbeatSlot{listener: listener})
}

func (s *ChannelSource) RemoveHeartbeatListener() {
	s.heartbeat.Store(nil)
}

// Start the decimation on the given scheduler and register for the tuner's samples.
// The channel frequency and the channel rate are sent to the frequency change listener before
// the first sample.
func (s *ChannelSource) Start(scheduler schedule.Scheduler) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == Stopped {
		return errors.WithStack(ErrExpended)
	}
	if !s.state.CompareAndSwap(int32(Constructed), int32(Running)) {
		log.Printf("channel source %s is already running", s.id)
		return nil
	}

	s.downstream.broadcast(frequency.Frequency(s.channel.Frequency))
	s.downstream.broadcast(frequency.SampleRate(s.config.ChannelRate))

	s.processor.start()
	task, err := scheduler.ScheduleAtFixedRate(s.config.ProcessingPeriod, s.processor.run)
	if err != nil {
		s.processor.shutdown()
		s.state.Store(int32(Constructed))
		return errors.Wrapf(ErrScheduleRejected, "channel %s: %v", s.channel, err)
	}
	s.task = task

	s.tuner.AddSampleListener(s)
	return nil
}

// Stop the decimation and release the channel. The channel source is expended afterwards.
func (s *ChannelSource) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		log.Printf("channel source %s is not running, stop ignored", s.id)
		return
	}

	s.tuner.RemoveSampleListener(s)
	s.tuner.ReleaseChannel(s)
	s.processor.shutdown()
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
	s.queue.Clear()
}

// Dispose releases the registrations of this channel source. A running channel source keeps
// its registration with the tuner controller; stop it first.
func (s *ChannelSource) Dispose() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != Running && !s.disposed {
		s.controller.RemoveFrequencyListener(s)
		s.disposed = true
	}
	s.heartbeat.Store(nil)
	s.downstream.setListener(nil)
}

// Receive a wideband buffer from the tuner. The buffer is queued for decimation, Receive never blocks.
func (s *ChannelSource) Receive(buffer *sample.ComplexBuffer) {
	if s.State() != Running {
		return
	}
	s.queue.Offer(buffer)

	// a concurrent Stop may have cleared the queue between the state check and the offer
	if s.State() != Running {
		s.queue.Clear()
	}
}

// FrequencyChanged handles the frequency change events of the tuner.
func (s *ChannelSource) FrequencyChanged(event frequency.Event) {
	observer := s.observer.Load()
	if observer != nil {
		observer.listener.FrequencyChanged(event)
	}

	switch event.Kind {
	case frequency.FrequencyChanged:
		s.setTunerFrequency(event.Value)
	case frequency.SampleRateChanged:
		s.setTunerSampleRate(int(event.Value))
	}
}

func (s *ChannelSource) setTunerFrequency(tunerFrequency int64) {
	s.lock.Lock()
	s.tunerFrequency = tunerFrequency
	s.correction = 0
	s.updateMixerFrequency()
	s.lock.Unlock()

	// the consumer has to determine the correction again for the new tuner frequency
	s.downstream.broadcast(frequency.Correction(0))
}

func (s *ChannelSource) setTunerSampleRate(sampleRate int) {
	s.lock.Lock()
	if sampleRate == s.tunerSampleRate {
		s.lock.Unlock()
		return
	}

	filter, err := dsp.NewDecimationFilter(sampleRate, s.config.FilterConfig())
	if err != nil {
		s.lock.Unlock()
		log.Printf("channel source %s cannot use the sample rate %dHz: %v", s.id, sampleRate, err)
		return
	}
	if s.listener != nil {
		filter.SetListener(s.listener)
	}
	s.oscillator.SetSampleRate(sampleRate)
	s.filter.Store(filter)
	s.tunerSampleRate = sampleRate
	s.lock.Unlock()

	s.downstream.broadcast(frequency.SampleRate(s.config.ChannelRate))
}

func (s *ChannelSource) setCorrection(correction int64) {
	s.lock.Lock()
	s.correction = correction
	s.updateMixerFrequency()
	s.lock.Unlock()

	s.downstream.broadcast(frequency.Correction(correction))
}

// updateMixerFrequency must be called with s.lock held.
func (s *ChannelSource) updateMixerFrequency() {
	s.oscillator.SetFrequency(s.tunerFrequency - s.channel.Frequency - s.correction)
}

func (s *ChannelSource) sendHeartbeat() {
	slot := s.heartbeat.Load()
	if slot != nil {
		slot.listener.Heartbeat()
	}
}

// downstream connects the channel source with the frequency events of its consumer.
type downstream struct {
	source   *ChannelSource
	listener atomic.Pointer[frequencyListenerSlot]
}

func (d *downstream) setListener(listener frequency.Listener) {
	if listener == nil {
		d.listener.Store(nil)
		return
	}
	d.listener.Store(&frequencyListenerSlot{listener: listener})
}

func (d *downstream) broadcast(event frequency.Event) {
	slot := d.listener.Load()
	if slot != nil {
		slot.listener.FrequencyChanged(event)
	}
}

// FrequencyChanged handles the change requests of the consumer.
func (d *downstream) FrequencyChanged(event frequency.Event) {
	switch event.Kind {
	case frequency.CorrectionChangeRequested:
		d.source.setCorrection(event.Value)
	default:
		log.Printf("channel source %s ignores the request %v", d.source.id, event)
	}
}
