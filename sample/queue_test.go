package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overflowRecorder struct {
	transitions []bool
}

func (r *overflowRecorder) SourceOverflow(overflow bool) {
	r.transitions = append(r.transitions, overflow)
}

func newTestBuffer(value float32) *ComplexBuffer {
	return NewComplexBuffer([]float32{value, value})
}

func TestNewOverflowQueue_InvalidParameters(t *testing.T) {
	assert.Panics(t, func() { NewOverflowQueue(0, 0) })
	assert.Panics(t, func() { NewOverflowQueue(10, 10) })
	assert.Panics(t, func() { NewOverflowQueue(10, -1) })
	assert.NotPanics(t, func() { NewOverflowQueue(10, 9) })
}

func TestOverflowQueue_FIFO(t *testing.T) {
	queue := NewOverflowQueue(10, 5)
	for i := range 4 {
		assert.True(t, queue.Offer(newTestBuffer(float32(i))))
	}

	drained := queue.DrainTo(nil, 3)

	require.Len(t, drained, 3)
	for i, buffer := range drained {
		assert.Equal(t, float32(i), buffer.Samples()[0])
	}
	assert.Equal(t, 1, queue.Len())
}

func TestOverflowQueue_OverflowAndReset(t *testing.T) {
	recorder := &overflowRecorder{}
	queue := NewOverflowQueue(300, 100)
	queue.SetOverflowListener(recorder)

	for i := range 300 {
		require.True(t, queue.Offer(newTestBuffer(float32(i))))
	}
	assert.True(t, queue.Overflow())
	assert.Equal(t, []bool{true}, recorder.transitions)

	assert.False(t, queue.Offer(newTestBuffer(300)), "dropped while overflowed")
	assert.Equal(t, 300, queue.Len())

	drained := queue.DrainTo(nil, 100)
	assert.Len(t, drained, 100)
	assert.True(t, queue.Overflow(), "still above the reset threshold")

	drained = queue.DrainTo(drained[:0], 100)
	assert.Len(t, drained, 100)
	assert.Equal(t, 100, queue.Len())
	assert.False(t, queue.Overflow())
	assert.Equal(t, []bool{true, false}, recorder.transitions)

	assert.True(t, queue.Offer(newTestBuffer(301)))
}

func TestOverflowQueue_DropsWhileOverflowedEvenWithRoom(t *testing.T) {
	queue := NewOverflowQueue(4, 1)
	for i := range 4 {
		queue.Offer(newTestBuffer(float32(i)))
	}
	queue.DrainTo(nil, 1)

	assert.Equal(t, 3, queue.Len())
	assert.True(t, queue.Overflow())
	assert.False(t, queue.Offer(newTestBuffer(4)))
	assert.Equal(t, 3, queue.Len())
}

func TestOverflowQueue_Clear(t *testing.T) {
	recorder := &overflowRecorder{}
	queue := NewOverflowQueue(3, 1)
	queue.SetOverflowListener(recorder)
	for i := range 3 {
		queue.Offer(newTestBuffer(float32(i)))
	}

	queue.Clear()

	assert.Equal(t, 0, queue.Len())
	assert.False(t, queue.Overflow())
	assert.Equal(t, []bool{true, false}, recorder.transitions)

	queue.Clear()
	assert.Equal(t, []bool{true, false}, recorder.transitions, "no transition without change")
}

func TestOverflowQueue_DrainEmpty(t *testing.T) {
	queue := NewOverflowQueue(3, 1)
	drained := queue.DrainTo(make([]*ComplexBuffer, 0, 20), 20)
	assert.Empty(t, drained)
	assert.Equal(t, 3, queue.Capacity())
}
