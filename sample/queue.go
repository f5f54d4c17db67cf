package sample

import (
	"fmt"
	"sync/atomic"
)

// OverflowQueue is a bounded FIFO of sample buffers that signals overflow instead of blocking
// the producer.
//
// Once the queue reaches its capacity it enters the overflow condition and drops all
// further offers. The condition is cleared when the consumer has drained the queue down to
// the reset threshold. The overflow listener is notified exactly once per transition.
//
// The queue is safe for one producer and one consumer running concurrently.
type OverflowQueue struct {
	buffers        chan *ComplexBuffer
	resetThreshold int

	overflow atomic.Bool
	listener atomic.Pointer[overflowListenerSlot]
}

type overflowListenerSlot struct {
	listener OverflowListener
}

// NewOverflowQueue returns a new queue with the given capacity. The overflow condition is
// reset when the queue holds resetThreshold buffers or less.
func NewOverflowQueue(capacity int, resetThreshold int) *OverflowQueue {
	if capacity < 1 {
		panic(fmt.Sprintf("queue capacity must be positive: %d", capacity))
	}
	if resetThreshold < 0 || resetThreshold >= capacity {
		panic(fmt.Sprintf("reset threshold %d must be within [0, %d)", resetThreshold, capacity))
	}
	return &OverflowQueue{
		buffers:        make(chan *ComplexBuffer, capacity),
		resetThreshold: resetThreshold,
	}
}

// SetOverflowListener sets the listener that is notified about overflow transitions.
// A nil listener removes the current listener.
func (q *OverflowQueue) SetOverflowListener(listener OverflowListener) {
	if listener == nil {
		q.listener.Store(nil)
		return
	}
	q.listener.Store(&overflowListenerSlot{listener: listener})
}

// Offer the given buffer to the queue. Offer never blocks; it returns false if the buffer
// was dropped because the queue is in the overflow condition.
func (q *OverflowQueue) Offer(buffer *ComplexBuffer) bool {
	if q.overflow.Load() {
		return false
	}

	select {
	case q.buffers <- buffer:
	default:
		q.setOverflow(true)
		return false
	}

	if len(q.buffers) >= cap(q.buffers) {
		q.setOverflow(true)
	}
	return true
}

// DrainTo removes up to maxCount buffers in FIFO order and appends them to dst.
func (q *OverflowQueue) DrainTo(dst []*ComplexBuffer, maxCount int) []*ComplexBuffer {
loop:
	for i := 0; i < maxCount; i++ {
		select {
		case buffer := <-q.buffers:
			dst = append(dst, buffer)
		default:
			break loop
		}
	}

	if q.overflow.Load() && len(q.buffers) <= q.resetThreshold {
		q.setOverflow(false)
	}
	return dst
}

// Clear discards all queued buffers and resets the overflow condition.
func (q *OverflowQueue) Clear() {
loop:
	for {
		select {
		case <-q.buffers:
		default:
			break loop
		}
	}
	q.setOverflow(false)
}

// Len returns the current number of queued buffers.
func (q *OverflowQueue) Len() int {
	return len(q.buffers)
}

// Capacity of the queue.
func (q *OverflowQueue) Capacity() int {
	return cap(q.buffers)
}

// Overflow indicates if the queue is currently in the overflow condition.
func (q *OverflowQueue) Overflow() bool {
	return q.overflow.Load()
}

func (q *OverflowQueue) setOverflow(overflow bool) {
	if !q.overflow.CompareAndSwap(!overflow, overflow) {
		return
	}
	slot := q.listener.Load()
	if slot != nil {
		slot.listener.SourceOverflow(overflow)
	}
}
