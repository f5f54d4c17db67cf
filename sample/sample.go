// Package sample provides the complex sample buffers that flow from a tuner through the
// channelizer and the plumbing to hand them from producers to consumers.
package sample

// ComplexBuffer holds interleaved I/Q samples: I0, Q0, I1, Q1, ...
// The payload must not be modified once the buffer was published. A consumer that needs
// to work in place has to take a Copy first.
type ComplexBuffer struct {
	samples []float32
}

// NewComplexBuffer wraps the given samples without copying. The length must be even.
func NewComplexBuffer(samples []float32) *ComplexBuffer {
	return &ComplexBuffer{samples: samples}
}

// Samples returns the interleaved I/Q samples.
func (b *ComplexBuffer) Samples() []float32 {
	return b.samples
}

// Len returns the number of complex samples, i.e. half the number of float values.
func (b *ComplexBuffer) Len() int {
	return len(b.samples) / 2
}

// Copy returns an independent copy of this buffer.
func (b *ComplexBuffer) Copy() *ComplexBuffer {
	samples := make([]float32, len(b.samples))
	copy(samples, b.samples)
	return &ComplexBuffer{samples: samples}
}

// Listener receives complex sample buffers.
type Listener interface {
	Receive(buffer *ComplexBuffer)
}

// ListenerFunc adapts a function to the Listener interface.
// Function values are not comparable, so a Broadcaster cannot remove a ListenerFunc again.
// Use a *ListenerFunc if the listener needs to be removed.
type ListenerFunc func(buffer *ComplexBuffer)

func (f ListenerFunc) Receive(buffer *ComplexBuffer) {
	f(buffer)
}

// OverflowListener is notified when a sample queue enters or leaves the overflow condition.
type OverflowListener interface {
	SourceOverflow(overflow bool)
}

type OverflowListenerFunc func(overflow bool)

func (f OverflowListenerFunc) SourceOverflow(overflow bool) {
	f(overflow)
}
