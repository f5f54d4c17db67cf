package frequency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_String(t *testing.T) {
	tt := []struct {
		event    Event
		expected string
	}{
		{event: Frequency(100000000), expected: "frequency: 100000000Hz"},
		{event: SampleRate(48000), expected: "sample rate: 48000Hz"},
		{event: Correction(-120), expected: "correction: -120Hz"},
		{event: CorrectionRequest(120), expected: "correction request: 120Hz"},
		{event: Event{Kind: Kind(42), Value: 1}, expected: "kind(42): 1Hz"},
	}
	for _, tc := range tt {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.event.String())
		})
	}
}

func TestListenerFunc(t *testing.T) {
	var received []Event
	var listener Listener = ListenerFunc(func(event Event) {
		received = append(received, event)
	})

	listener.FrequencyChanged(SampleRate(2400000))

	assert.Equal(t, []Event{{Kind: SampleRateChanged, Value: 2400000}}, received)
}

type countingListener struct {
	count int
}

func (l *countingListener) FrequencyChanged(Event) {
	l.count++
}

func TestSameListener(t *testing.T) {
	first := &countingListener{}
	second := &countingListener{}
	f := ListenerFunc(func(Event) {})
	tt := []struct {
		desc     string
		a        Listener
		b        Listener
		expected bool
	}{
		{desc: "same pointer", a: first, b: first, expected: true},
		{desc: "different pointers", a: first, b: second, expected: false},
		{desc: "same pointer to func", a: &f, b: &f, expected: true},
		{desc: "func values", a: f, b: f, expected: false},
		{desc: "func and pointer", a: f, b: first, expected: false},
		{desc: "nil", a: nil, b: nil, expected: false},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tc.expected, SameListener(tc.a, tc.b))
			})
		})
	}
}
