package trace

import (
	"time"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
)

// Tap sits between a channel source and its consumer. It traces every baseband buffer and
// every frequency event before handing them on to the next listener.
type Tap struct {
	tracer      Tracer
	nextSamples sample.Listener
	nextEvents  frequency.Listener
	startTime   time.Time
	clock       func() time.Time
}

func NewTap(tracer Tracer, nextSamples sample.Listener, nextEvents frequency.Listener) *Tap {
	return &Tap{
		tracer:      tracer,
		nextSamples: nextSamples,
		nextEvents:  nextEvents,
		startTime:   time.Now(),
		clock:       time.Now,
	}
}

func (t *Tap) Receive(buffer *sample.ComplexBuffer) {
	t.tracer.TraceSamples(BasebandContext, buffer.Samples())
	if t.nextSamples != nil {
		t.nextSamples.Receive(buffer)
	}
}

func (t *Tap) FrequencyChanged(event frequency.Event) {
	elapsed := t.clock().Sub(t.startTime)
	t.tracer.Trace(EventsContext, "%d;%s;%d\n", elapsed.Milliseconds(), event.Kind, event.Value)
	if t.nextEvents != nil {
		t.nextEvents.FrequencyChanged(event)
	}
}
