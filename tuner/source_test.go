package tuner

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
)

func TestNewChannelSource(t *testing.T) {
	feed := newTestFeed()

	source, err := feed.Channel(testChannel)
	require.NoError(t, err)

	assert.Equal(t, 50, source.Decimation())
	assert.Equal(t, int64(-12000), source.MixerFrequency())
	assert.Equal(t, int64(0), source.FrequencyCorrection())
	assert.Equal(t, int64(testChannelFrequency), source.Frequency())
	assert.Equal(t, 48000, source.SampleRate())
	assert.Equal(t, testSampleRate, source.TunerSampleRate())
	assert.Equal(t, Constructed, source.State())
	assert.Equal(t, testChannel, source.Channel())
	assert.NotEqual(t, source.ID(), must(feed.Channel(testChannel)).ID())
}

func must[T any](value T, err error) T {
	if err != nil {
		panic(err)
	}
	return value
}

func TestNewChannelSource_UnsupportedSampleRate(t *testing.T) {
	feed := NewFeed(testTunerFrequency, 2000000, DefaultConfig())

	_, err := feed.Channel(testChannel)

	assert.Error(t, err)
}

func TestNewChannelSource_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.BatchSize = 0
	feed := NewFeed(testTunerFrequency, testSampleRate, config)

	_, err := feed.Channel(testChannel)

	assert.Error(t, err)
}

func TestChannelSource_CorrectionRequest(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)

	source.FrequencyChangeRequests().FrequencyChanged(frequency.CorrectionRequest(120))

	assert.Equal(t, int64(-12120), source.MixerFrequency())
	assert.Equal(t, int64(120), source.FrequencyCorrection())
	assert.Equal(t, []frequency.Event{frequency.Correction(120)}, events.events)
}

func TestChannelSource_IgnoresOtherRequests(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)

	source.FrequencyChangeRequests().FrequencyChanged(frequency.Frequency(testTunerFrequency))
	source.FrequencyChangeRequests().FrequencyChanged(frequency.SampleRate(960000))

	assert.Equal(t, int64(-12000), source.MixerFrequency())
	assert.Equal(t, testSampleRate, source.TunerSampleRate())
	assert.Empty(t, events.events)
}

func TestChannelSource_TunerFrequencyChange(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)
	source.FrequencyChangeRequests().FrequencyChanged(frequency.CorrectionRequest(120))

	var mixerFrequencyAtEcho int64
	observed := &eventRecorder{}
	source.SetFrequencyObserver(frequency.ListenerFunc(func(event frequency.Event) {
		mixerFrequencyAtEcho = source.MixerFrequency()
		observed.FrequencyChanged(event)
	}))

	feed.SetFrequency(100010000)

	assert.Equal(t, []frequency.Event{frequency.Frequency(100010000)}, observed.events)
	assert.Equal(t, int64(-12120), mixerFrequencyAtEcho, "echo before handling")
	assert.Equal(t, int64(-2000), source.MixerFrequency())
	assert.Equal(t, int64(0), source.FrequencyCorrection())
	assert.Equal(t, []frequency.Event{frequency.Correction(120), frequency.Correction(0)}, events.events)
}

func TestChannelSource_SampleRateChange(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)
	output := &sampleCollector{}
	source.SetListener(output)
	scheduler := &manualScheduler{}
	require.NoError(t, source.Start(scheduler))
	events.events = nil

	feed.SetSampleRate(960000)

	assert.Equal(t, 20, source.Decimation())
	assert.Equal(t, 960000, source.TunerSampleRate())
	assert.Equal(t, []frequency.Event{frequency.SampleRate(48000)}, events.events)

	feed.Receive(sample.NewComplexBuffer(make([]float32, 2*1920)))
	scheduler.run()

	require.Len(t, output.buffers, 1, "the listener is kept")
	assert.Equal(t, 2*96, len(output.buffers[0].Samples()))
}

func TestChannelSource_SampleRateChangeRetunesOscillator(t *testing.T) {
	feed := newTestFeed()
	source, scheduler, output := startTestSource(t, feed, testChannel)

	feed.SetSampleRate(960000)

	assert.Equal(t, 960000, source.oscillator.SampleRate())
	assert.Equal(t, int64(-12000), source.MixerFrequency())

	input := tone(12000, 960000, 20*400)
	for i := 0; i < len(input); i += 2 * 2000 {
		feed.Receive(sample.NewComplexBuffer(input[i : i+2*2000]))
	}
	scheduler.run()

	samples := output.samples()
	require.Equal(t, 2*400, len(samples))
	settled := samples[len(samples)/2:]
	for i := 0; i < len(settled); i += 2 {
		assert.InDelta(t, 1, settled[i], 0.01, "inphase at %d", i/2)
		assert.InDelta(t, 0, settled[i+1], 0.01, "quadrature at %d", i/2)
	}
}

func TestChannelSource_MixerFollowsEvents(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)

	tt := []struct {
		desc               string
		apply              func()
		expectedTuner      int64
		expectedRate       int
		expectedCorrection int64
	}{
		{
			desc:          "initial",
			apply:         func() {},
			expectedTuner: testTunerFrequency, expectedRate: testSampleRate,
		},
		{
			desc:          "correction",
			apply:         func() { source.FrequencyChangeRequests().FrequencyChanged(frequency.CorrectionRequest(120)) },
			expectedTuner: testTunerFrequency, expectedRate: testSampleRate, expectedCorrection: 120,
		},
		{
			desc:          "sample rate keeps the correction",
			apply:         func() { feed.SetSampleRate(960000) },
			expectedTuner: testTunerFrequency, expectedRate: 960000, expectedCorrection: 120,
		},
		{
			desc:          "tuner frequency resets the correction",
			apply:         func() { feed.SetFrequency(100005000) },
			expectedTuner: 100005000, expectedRate: 960000,
		},
		{
			desc:          "negative correction",
			apply:         func() { source.FrequencyChangeRequests().FrequencyChanged(frequency.CorrectionRequest(-250)) },
			expectedTuner: 100005000, expectedRate: 960000, expectedCorrection: -250,
		},
		{
			desc:          "unsupported sample rate",
			apply:         func() { feed.SetSampleRate(1000000) },
			expectedTuner: 100005000, expectedRate: 960000, expectedCorrection: -250,
		},
		{
			desc:          "back to the original rate",
			apply:         func() { feed.SetSampleRate(testSampleRate) },
			expectedTuner: 100005000, expectedRate: testSampleRate, expectedCorrection: -250,
		},
		{
			desc:          "tuner below the channel",
			apply:         func() { feed.SetFrequency(100020000) },
			expectedTuner: 100020000, expectedRate: testSampleRate,
		},
	}
	for _, tc := range tt {
		tc.apply()

		expectedMixer := tc.expectedTuner - testChannelFrequency - tc.expectedCorrection
		assert.Equal(t, expectedMixer, source.MixerFrequency(), tc.desc)
		assert.Equal(t, expectedMixer, source.oscillator.Frequency(), tc.desc)
		assert.Equal(t, tc.expectedRate, source.TunerSampleRate(), tc.desc)
		assert.Equal(t, tc.expectedRate, source.oscillator.SampleRate(), tc.desc)
		assert.Equal(t, tc.expectedCorrection, source.FrequencyCorrection(), tc.desc)
	}
}

func TestChannelSource_SameSampleRateIsIgnored(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)

	source.FrequencyChanged(frequency.SampleRate(testSampleRate))

	assert.Equal(t, 50, source.Decimation())
	assert.Empty(t, events.events)
}

func TestChannelSource_UnsupportedSampleRateChangeKeepsFilter(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)

	source.FrequencyChanged(frequency.SampleRate(1000000))

	assert.Equal(t, 50, source.Decimation())
	assert.Equal(t, testSampleRate, source.TunerSampleRate())
	assert.Empty(t, events.events)
}

func TestChannelSource_StartBroadcastsBaseline(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	events := &eventRecorder{}
	source.SetFrequencyChangeListener(events)
	scheduler := &manualScheduler{}

	err = source.Start(scheduler)
	require.NoError(t, err)

	assert.Equal(t, Running, source.State())
	assert.Equal(t, []frequency.Event{
		frequency.Frequency(testChannelFrequency),
		frequency.SampleRate(48000),
	}, events.events)
	require.Len(t, scheduler.tasks, 1)
	assert.Equal(t, DefaultConfig().ProcessingPeriod, scheduler.tasks[0].period)

	err = source.Start(scheduler)
	assert.NoError(t, err, "starting twice is ignored")
	assert.Len(t, events.events, 2)
	assert.Len(t, scheduler.tasks, 1)
}

func TestChannelSource_StartRejected(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	scheduler := &manualScheduler{reject: true}

	err = source.Start(scheduler)

	assert.True(t, errors.Is(err, ErrScheduleRejected))
	assert.Equal(t, Constructed, source.State())

	feed.Receive(sample.NewComplexBuffer(make([]float32, 20)))
	assert.Equal(t, 0, source.QueueLen(), "not registered with the tuner")

	scheduler.reject = false
	err = source.Start(scheduler)
	assert.NoError(t, err)
	assert.Equal(t, Running, source.State())
}

func TestChannelSource_StopExpends(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	scheduler := &manualScheduler{}
	require.NoError(t, source.Start(scheduler))
	feed.Receive(sample.NewComplexBuffer(make([]float32, 20)))
	require.Equal(t, 1, source.QueueLen())

	source.Stop()

	assert.Equal(t, Stopped, source.State())
	assert.True(t, scheduler.tasks[0].canceled)
	assert.Equal(t, 0, source.QueueLen())
	assert.Empty(t, feed.Channels())

	feed.Receive(sample.NewComplexBuffer(make([]float32, 20)))
	assert.Equal(t, 0, source.QueueLen(), "not registered with the tuner anymore")

	err = source.Start(scheduler)
	assert.True(t, errors.Is(err, ErrExpended))
	assert.Equal(t, Stopped, source.State())

	source.Stop()
	assert.Equal(t, Stopped, source.State())
}

func TestChannelSource_StopDuringReceiveLeavesQueueEmpty(t *testing.T) {
	for range 50 {
		feed := newTestFeed()
		source, err := feed.Channel(testChannel)
		require.NoError(t, err)
		require.NoError(t, source.Start(&manualScheduler{}))

		start := make(chan struct{})
		var receivers sync.WaitGroup
		for range 4 {
			receivers.Add(1)
			go func() {
				defer receivers.Done()
				<-start
				for range 200 {
					source.Receive(sample.NewComplexBuffer(make([]float32, 20)))
				}
			}()
		}
		close(start)
		source.Stop()
		receivers.Wait()

		require.Equal(t, 0, source.QueueLen())
	}
}

func TestChannelSource_StopBeforeStartIsIgnored(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)

	source.Stop()

	assert.Equal(t, Constructed, source.State())
	assert.NoError(t, source.Start(&manualScheduler{}))
}

func TestChannelSource_ReceiveOnlyWhileRunning(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)

	source.Receive(sample.NewComplexBuffer(make([]float32, 20)))
	assert.Equal(t, 0, source.QueueLen())

	require.NoError(t, source.Start(&manualScheduler{}))
	source.Receive(sample.NewComplexBuffer(make([]float32, 20)))
	assert.Equal(t, 1, source.QueueLen())
}

func TestChannelSource_Dispose(t *testing.T) {
	t.Run("not running", func(t *testing.T) {
		feed := newTestFeed()
		source, err := feed.Channel(testChannel)
		require.NoError(t, err)
		observed := &eventRecorder{}
		source.SetFrequencyObserver(observed)
		events := &eventRecorder{}
		source.SetFrequencyChangeListener(events)

		source.Dispose()
		source.Dispose()
		feed.SetFrequency(100001000)

		assert.Empty(t, observed.events)
		assert.Equal(t, int64(-12000), source.MixerFrequency())
		source.FrequencyChangeRequests().FrequencyChanged(frequency.CorrectionRequest(5))
		assert.Empty(t, events.events, "downstream listener removed")
	})
	t.Run("running", func(t *testing.T) {
		feed := newTestFeed()
		source, err := feed.Channel(testChannel)
		require.NoError(t, err)
		require.NoError(t, source.Start(&manualScheduler{}))
		observed := &eventRecorder{}
		source.SetFrequencyObserver(observed)

		source.Dispose()
		feed.SetFrequency(100001000)

		assert.Len(t, observed.events, 1)
		assert.Equal(t, int64(-11000), source.MixerFrequency())
	})
}

func TestChannelSource_RemoveListener(t *testing.T) {
	feed := newTestFeed()
	source, err := feed.Channel(testChannel)
	require.NoError(t, err)
	output := &sampleCollector{}
	source.SetListener(output)
	scheduler := &manualScheduler{}
	require.NoError(t, source.Start(scheduler))

	source.RemoveListener()
	feed.SetSampleRate(960000)
	feed.Receive(sample.NewComplexBuffer(make([]float32, 2*1920)))
	scheduler.run()

	assert.Empty(t, output.buffers)
}
