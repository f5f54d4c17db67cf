// Package frequency defines the events that tell the participants of a sample stream about
// changes of the tuned frequency, the sample rate, and the frequency correction.
package frequency

import (
	"fmt"
	"reflect"
)

// Kind of a frequency change event.
type Kind int

const (
	// FrequencyChanged carries the new center frequency in Hz.
	FrequencyChanged Kind = iota
	// SampleRateChanged carries the new sample rate in Hz.
	SampleRateChanged
	// CorrectionChanged carries the frequency correction in Hz that is currently applied.
	CorrectionChanged
	// CorrectionChangeRequested asks a channel source to apply the given frequency correction.
	CorrectionChangeRequested
)

var kindNames = map[Kind]string{
	FrequencyChanged:          "frequency",
	SampleRateChanged:         "sample rate",
	CorrectionChanged:         "correction",
	CorrectionChangeRequested: "correction request",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return name
}

// Event describes one change. Events are values and are never modified after creation.
type Event struct {
	Kind  Kind
	Value int64
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %dHz", e.Kind, e.Value)
}

// Frequency returns a new FrequencyChanged event.
func Frequency(frequency int64) Event {
	return Event{Kind: FrequencyChanged, Value: frequency}
}

// SampleRate returns a new SampleRateChanged event.
func SampleRate(sampleRate int) Event {
	return Event{Kind: SampleRateChanged, Value: int64(sampleRate)}
}

// Correction returns a new CorrectionChanged event.
func Correction(correction int64) Event {
	return Event{Kind: CorrectionChanged, Value: correction}
}

// CorrectionRequest returns a new CorrectionChangeRequested event.
func CorrectionRequest(correction int64) Event {
	return Event{Kind: CorrectionChangeRequested, Value: correction}
}

// Listener is notified about frequency change events.
type Listener interface {
	FrequencyChanged(event Event)
}

// ListenerFunc adapts a function to the Listener interface. Function values are not
// comparable, use a *ListenerFunc if the listener needs to be removed again.
type ListenerFunc func(event Event)

func (f ListenerFunc) FrequencyChanged(event Event) {
	f(event)
}

// SameListener reports whether a and b are the same listener. Listeners of an uncomparable
// dynamic type are never the same.
func SameListener(a, b Listener) bool {
	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) || typeA == nil || !typeA.Comparable() {
		return false
	}
	return a == b
}
