package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/schedule"
	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/sim"
	"github.com/ftl/channelizer/tuner"
)

const (
	testTunerFrequency   = 100000000
	testSampleRate       = 480000
	testChannelFrequency = 100012000
	testBufferSize       = 4800
)

type recordingScope struct {
	lock           sync.Mutex
	timeFrames     []*scope.TimeFrame
	spectralFrames []*scope.SpectralFrame
}

func (s *recordingScope) ShowTimeFrame(frame *scope.TimeFrame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.timeFrames = append(s.timeFrames, frame)
}

func (s *recordingScope) ShowSpectralFrame(frame *scope.SpectralFrame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.spectralFrames = append(s.spectralFrames, frame)
}

type manualTask struct {
	run      func()
	once     sync.Once
	canceled bool
	done     chan struct{}
}

func (t *manualTask) Cancel() {
	t.once.Do(func() {
		t.canceled = true
		close(t.done)
	})
}

func (t *manualTask) Done() <-chan struct{} {
	return t.done
}

type testSetup struct {
	sim     *sim.Tuner
	source  *tuner.ChannelSource
	monitor *Monitor
	scope   *recordingScope
	task    *manualTask
}

func newTestSetup(t *testing.T, config tuner.Config, nextSamples sample.Listener, nextEvents frequency.Listener) *testSetup {
	t.Helper()
	result := &testSetup{
		sim:   sim.New(testTunerFrequency, testSampleRate, config, sim.Signal{Frequency: testChannelFrequency, Amplitude: 0.5}),
		scope: new(recordingScope),
	}

	source, err := result.sim.Channel(tuner.Channel{Frequency: testChannelFrequency, Bandwidth: 12500})
	require.NoError(t, err)
	result.source = source

	result.monitor = New(result.scope)
	result.monitor.frameInterval = 0
	result.monitor.clock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	result.monitor.Attach(source, nextSamples, nextEvents)

	scheduler := schedule.SchedulerFunc(func(period time.Duration, task func()) (schedule.Task, error) {
		result.task = &manualTask{run: task, done: make(chan struct{})}
		return result.task, nil
	})
	require.NoError(t, source.Start(scheduler))
	return result
}

func (s *testSetup) emit(count int) {
	for range count {
		s.sim.Emit(testBufferSize)
	}
}

func TestProbeStatistics(t *testing.T) {
	setup := newTestSetup(t, tuner.DefaultConfig(), nil, nil)

	setup.emit(25)
	setup.task.run()
	setup.task.run()

	status, ok := setup.monitor.ChannelStatus(setup.source.ID())
	require.True(t, ok)
	assert.Equal(t, setup.source.ID().String(), status.ID)
	assert.Equal(t, int64(testChannelFrequency), status.Frequency)
	assert.Empty(t, status.Band)
	assert.Equal(t, 12500, status.Bandwidth)
	assert.Equal(t, 48000, status.SampleRate)
	assert.Equal(t, testSampleRate, status.TunerSampleRate)
	assert.Equal(t, 10, status.Decimation)
	assert.Equal(t, "running", status.State)
	assert.Equal(t, int64(25), status.Buffers)
	assert.Equal(t, int64(2), status.Heartbeats)
	assert.Equal(t, int64(2), status.ChannelEvents)
	assert.Equal(t, "sample rate: 48000Hz", status.LastEvent)
	assert.Equal(t, int64(0), status.Overflows)
	assert.False(t, status.Overflow)
	assert.InDelta(t, -6.02, status.PowerdB, 0.5)
}

func TestProbeShowsFrames(t *testing.T) {
	setup := newTestSetup(t, tuner.DefaultConfig(), nil, nil)

	setup.emit(25)
	setup.task.run()
	setup.task.run()

	channelID := scope.ChannelID(setup.source.ID().String())
	require.Len(t, setup.scope.timeFrames, 4)
	assert.Equal(t, powerStream, setup.scope.timeFrames[0].Stream)
	assert.Equal(t, queueStream, setup.scope.timeFrames[1].Stream)
	assert.Contains(t, setup.scope.timeFrames[2].Values, channelID)
	assert.InDelta(t, -6.02, setup.scope.timeFrames[2].Values[channelID], 0.5)

	require.Len(t, setup.scope.spectralFrames, 25*480/spectrumBlockSize)
	frame := setup.scope.spectralFrames[len(setup.scope.spectralFrames)-1]
	assert.Equal(t, spectrumStream, frame.Stream)
	assert.Equal(t, float64(testChannelFrequency-24000), frame.FromFrequency)
	assert.Equal(t, float64(testChannelFrequency+24000), frame.ToFrequency)
	assert.Len(t, frame.Values, spectrumBlockSize)
	assert.Equal(t, float64(testChannelFrequency), frame.FrequencyMarkers[centerMarker])
	assert.InDelta(t, float64(testChannelFrequency), frame.FrequencyMarkers[peakMarker], 48000.0/spectrumBlockSize)
}

func TestProbeCountsOverflows(t *testing.T) {
	config := tuner.DefaultConfig()
	config.QueueCapacity = 2
	config.ResetThreshold = 0
	setup := newTestSetup(t, config, nil, nil)

	setup.emit(3)

	status, _ := setup.monitor.ChannelStatus(setup.source.ID())
	assert.True(t, status.Overflow)
	assert.Equal(t, int64(1), status.Overflows)

	setup.task.run()

	status, _ = setup.monitor.ChannelStatus(setup.source.ID())
	assert.False(t, status.Overflow)
	assert.Equal(t, int64(1), status.Overflows)
}

func TestProbeCountsTunerEvents(t *testing.T) {
	setup := newTestSetup(t, tuner.DefaultConfig(), nil, nil)

	setup.sim.SetFrequency(testTunerFrequency + 1000)

	status, _ := setup.monitor.ChannelStatus(setup.source.ID())
	assert.Equal(t, int64(1), status.TunerEvents)
	assert.Equal(t, "frequency: 100001000Hz", status.LastTunerEvent)
	assert.Equal(t, "correction: 0Hz", status.LastEvent)
}

type eventRecorder struct {
	events []frequency.Event
}

func (r *eventRecorder) FrequencyChanged(event frequency.Event) {
	r.events = append(r.events, event)
}

type bufferCounter struct {
	count int
}

func (c *bufferCounter) Receive(*sample.ComplexBuffer) {
	c.count++
}

func TestProbeForwards(t *testing.T) {
	samples := new(bufferCounter)
	events := new(eventRecorder)
	setup := newTestSetup(t, tuner.DefaultConfig(), samples, events)

	setup.emit(3)
	setup.task.run()

	assert.Equal(t, 3, samples.count)
	assert.Equal(t, []frequency.Event{frequency.Frequency(testChannelFrequency), frequency.SampleRate(48000)}, events.events)
}

func TestDetach(t *testing.T) {
	samples := new(bufferCounter)
	setup := newTestSetup(t, tuner.DefaultConfig(), samples, nil)

	setup.monitor.Detach(setup.source.ID())
	setup.emit(3)
	setup.task.run()

	assert.Empty(t, setup.monitor.Status())
	assert.Equal(t, 0, samples.count)
	assert.NotPanics(t, func() {
		setup.monitor.Detach(setup.source.ID())
	})
}

func TestAttachTwice(t *testing.T) {
	setup := newTestSetup(t, tuner.DefaultConfig(), nil, nil)

	setup.monitor.Attach(setup.source, nil, nil)

	assert.Len(t, setup.monitor.Status(), 1)
}

func TestHTTPHandler(t *testing.T) {
	setup := newTestSetup(t, tuner.DefaultConfig(), nil, nil)
	handler := setup.monitor.Handler()
	id := setup.source.ID().String()

	tt := []struct {
		desc           string
		path           string
		expectedStatus int
	}{
		{"all channels", "/channels", http.StatusOK},
		{"one channel", "/channels/" + id, http.StatusOK},
		{"invalid ID", "/channels/abc", http.StatusBadRequest},
		{"unknown channel", "/channels/" + uuid.NewString(), http.StatusNotFound},
		{"unknown path", "/status", http.StatusNotFound},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodGet, tc.path, nil)

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tc.expectedStatus, recorder.Code)
		})
	}
}

func TestHTTPChannelList(t *testing.T) {
	setup := newTestSetup(t, tuner.DefaultConfig(), nil, nil)
	recorder := httptest.NewRecorder()

	setup.monitor.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/channels", nil))

	var channels []ChannelStatus
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &channels))
	require.Len(t, channels, 1)
	assert.Equal(t, setup.source.ID().String(), channels[0].ID)
	assert.Equal(t, int64(testChannelFrequency), channels[0].Frequency)
	assert.Equal(t, "running", channels[0].State)
}
