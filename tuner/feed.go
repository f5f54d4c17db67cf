package tuner

import (
	"cmp"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
)

// Feed is a Tuner that is fed with wideband samples by some source, e.g. a network receiver or a
// sound card. It keeps the tuning parameters, fans out the samples to all sample listeners,
// and manages the channel sources that were requested from it.
type Feed struct {
	config Config

	frequency  atomic.Int64
	sampleRate atomic.Int64

	samples sample.Broadcaster

	listenerLock       sync.Mutex
	frequencyListeners atomic.Pointer[[]frequency.Listener]

	channelLock sync.Mutex
	channels    map[uuid.UUID]*ChannelSource
}

// NewFeed returns a new feed with the given tuning parameters. A sample rate of 0 indicates that
// the sample rate is not yet known; the tuner is unavailable until it is set.
func NewFeed(frequency int64, sampleRate int, config Config) *Feed {
	result := &Feed{
		config:   config,
		channels: make(map[uuid.UUID]*ChannelSource),
	}
	result.frequency.Store(frequency)
	result.sampleRate.Store(int64(sampleRate))
	return result
}

func (f *Feed) Controller() Controller {
	return f
}

func (f *Feed) Frequency() (int64, error) {
	if f.sampleRate.Load() <= 0 {
		return 0, ErrTunerUnavailable
	}
	return f.frequency.Load(), nil
}

func (f *Feed) SampleRate() (int, error) {
	sampleRate := f.sampleRate.Load()
	if sampleRate <= 0 {
		return 0, ErrTunerUnavailable
	}
	return int(sampleRate), nil
}

// SetFrequency sets the center frequency and notifies the frequency listeners if it changed.
func (f *Feed) SetFrequency(frequencyHz int64) {
	if f.frequency.Swap(frequencyHz) == frequencyHz {
		return
	}
	f.notifyFrequencyListeners(frequency.Frequency(frequencyHz))
}

// SetSampleRate sets the wideband sample rate and notifies the frequency listeners if it changed.
func (f *Feed) SetSampleRate(sampleRate int) {
	if f.sampleRate.Swap(int64(sampleRate)) == int64(sampleRate) {
		return
	}
	f.notifyFrequencyListeners(frequency.SampleRate(sampleRate))
}

func (f *Feed) AddFrequencyListener(listener frequency.Listener) {
	f.listenerLock.Lock()
	defer f.listenerLock.Unlock()

	listeners := f.frequencyListenerSnapshot()
	if slices.ContainsFunc(listeners, func(l frequency.Listener) bool {
		return frequency.SameListener(l, listener)
	}) {
		return
	}
	next := append(slices.Clone(listeners), listener)
	f.frequencyListeners.Store(&next)
}

func (f *Feed) RemoveFrequencyListener(listener frequency.Listener) {
	f.listenerLock.Lock()
	defer f.listenerLock.Unlock()

	next := slices.DeleteFunc(slices.Clone(f.frequencyListenerSnapshot()), func(l frequency.Listener) bool {
		return frequency.SameListener(l, listener)
	})
	f.frequencyListeners.Store(&next)
}

func (f *Feed) frequencyListenerSnapshot() []frequency.Listener {
	listeners := f.frequencyListeners.Load()
	if listeners == nil {
		return nil
	}
	return *listeners
}

func (f *Feed) notifyFrequencyListeners(event frequency.Event) {
	for _, listener := range f.frequencyListenerSnapshot() {
		listener.FrequencyChanged(event)
	}
}

func (f *Feed) AddSampleListener(listener sample.Listener) {
	f.samples.Add(listener)
}

func (f *Feed) RemoveSampleListener(listener sample.Listener) {
	f.samples.Remove(listener)
}

// Receive wideband samples and pass them on to all sample listeners.
func (f *Feed) Receive(buffer *sample.ComplexBuffer) {
	f.samples.Broadcast(buffer)
}

// Channel returns a new channel source for the given channel. The channel must fit into the
// currently tuned bandwidth.
func (f *Feed) Channel(channel Channel) (*ChannelSource, error) {
	tunerFrequency, err := f.Frequency()
	if err != nil {
		return nil, err
	}
	sampleRate, err := f.SampleRate()
	if err != nil {
		return nil, err
	}

	offset := channel.Frequency - tunerFrequency
	if offset < 0 {
		offset = -offset
	}
	if 2*(offset+int64(channel.Bandwidth)/2) > int64(sampleRate) {
		return nil, errors.Wrapf(ErrChannelUnavailable, "%v is outside of %dHz/%dHz", channel, tunerFrequency, sampleRate)
	}

	result, err := NewChannelSource(f, channel, f.config)
	if err != nil {
		return nil, err
	}

	f.channelLock.Lock()
	defer f.channelLock.Unlock()
	f.channels[result.ID()] = result
	return result, nil
}

// ReleaseChannel removes the given channel source from this feed.
func (f *Feed) ReleaseChannel(source *ChannelSource) {
	f.RemoveSampleListener(source)

	f.channelLock.Lock()
	defer f.channelLock.Unlock()
	if _, ok := f.channels[source.ID()]; !ok {
		log.Printf("channel source %s is unknown", source.ID())
		return
	}
	delete(f.channels, source.ID())
}

// Channels returns all channel sources that were not yet released, ordered by frequency.
func (f *Feed) Channels() []*ChannelSource {
	f.channelLock.Lock()
	defer f.channelLock.Unlock()

	result := make([]*ChannelSource, 0, len(f.channels))
	for _, source := range f.channels {
		result = append(result, source)
	}
	slices.SortFunc(result, func(a, b *ChannelSource) int {
		if a.Frequency() != b.Frequency() {
			return cmp.Compare(a.Frequency(), b.Frequency())
		}
		return cmp.Compare(a.ID().String(), b.ID().String())
	})
	return result
}

// ChannelSource returns the channel source with the given ID.
func (f *Feed) ChannelSource(id uuid.UUID) (*ChannelSource, bool) {
	f.channelLock.Lock()
	defer f.channelLock.Unlock()
	result, ok := f.channels[id]
	return result, ok
}
