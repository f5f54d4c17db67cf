package tuner

import (
	"math"
	"sync"
	"time"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/schedule"
)

const (
	testTunerFrequency   = 100000000
	testSampleRate       = 2400000
	testChannelFrequency = 100012000
)

var testChannel = Channel{Frequency: testChannelFrequency, Bandwidth: 12500}

func newTestFeed() *Feed {
	return NewFeed(testTunerFrequency, testSampleRate, DefaultConfig())
}

type manualScheduler struct {
	tasks  []*manualTask
	reject bool
}

func (s *manualScheduler) ScheduleAtFixedRate(period time.Duration, task func()) (schedule.Task, error) {
	if s.reject {
		return nil, schedule.ErrRejected
	}
	result := &manualTask{period: period, run: task, done: make(chan struct{})}
	s.tasks = append(s.tasks, result)
	return result, nil
}

func (s *manualScheduler) run() {
	for _, task := range s.tasks {
		if !task.canceled {
			task.run()
		}
	}
}

type manualTask struct {
	period   time.Duration
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

type eventRecorder struct {
	events []frequency.Event
}

func (r *eventRecorder) FrequencyChanged(event frequency.Event) {
	r.events = append(r.events, event)
}

type sampleCollector struct {
	buffers   []*sample.ComplexBuffer
	onReceive func(*sample.ComplexBuffer)
}

func (c *sampleCollector) Receive(buffer *sample.ComplexBuffer) {
	c.buffers = append(c.buffers, buffer)
	if c.onReceive != nil {
		c.onReceive(buffer)
	}
}

func (c *sampleCollector) samples() []float32 {
	var result []float32
	for _, buffer := range c.buffers {
		result = append(result, buffer.Samples()...)
	}
	return result
}

type heartbeatCounter struct {
	count int
}

func (c *heartbeatCounter) Heartbeat() {
	c.count++
}

type overflowRecorder struct {
	transitions []bool
}

func (r *overflowRecorder) SourceOverflow(overflow bool) {
	r.transitions = append(r.transitions, overflow)
}

func tone(frequency float64, sampleRate int, count int) []float32 {
	result := make([]float32, 2*count)
	for i := 0; i < count; i++ {
		phase := 2 * math.Pi * frequency * float64(i) / float64(sampleRate)
		result[2*i] = float32(math.Cos(phase))
		result[2*i+1] = float32(math.Sin(phase))
	}
	return result
}

func power(iq []float32) float64 {
	var sum float64
	for i := 0; i+1 < len(iq); i += 2 {
		sum += float64(iq[i]*iq[i] + iq[i+1]*iq[i+1])
	}
	return sum / float64(len(iq)/2)
}
