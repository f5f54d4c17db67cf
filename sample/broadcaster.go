package sample

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Broadcaster fans out sample buffers to a set of listeners.
//
// Every broadcast iterates over an immutable snapshot of the listener list, so listeners
// may be added or removed concurrently with a broadcast. The last listener of the snapshot
// receives the original buffer, every other listener receives its own copy.
//
// The zero value is ready to use.
type Broadcaster struct {
	lock      sync.Mutex
	listeners atomic.Pointer[[]Listener]
}

// Add the given listener. Adding the same listener twice has no effect. Listeners of an
// uncomparable type (e.g. a plain ListenerFunc) are always added and cannot be removed
// individually.
func (b *Broadcaster) Add(listener Listener) {
	b.lock.Lock()
	defer b.lock.Unlock()

	current := b.snapshot()
	for _, l := range current {
		if sameListener(l, listener) {
			return
		}
	}

	next := make([]Listener, len(current), len(current)+1)
	copy(next, current)
	next = append(next, listener)
	b.listeners.Store(&next)
}

// Remove the given listener.
func (b *Broadcaster) Remove(listener Listener) {
	b.lock.Lock()
	defer b.lock.Unlock()

	current := b.snapshot()
	next := make([]Listener, 0, len(current))
	for _, l := range current {
		if !sameListener(l, listener) {
			next = append(next, l)
		}
	}
	b.listeners.Store(&next)
}

// Clear removes all listeners.
func (b *Broadcaster) Clear() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.listeners.Store(nil)
}

// Len returns the current number of listeners.
func (b *Broadcaster) Len() int {
	return len(b.snapshot())
}

// Broadcast the given buffer to all listeners.
func (b *Broadcaster) Broadcast(buffer *ComplexBuffer) {
	listeners := b.snapshot()
	last := len(listeners) - 1
	for i, listener := range listeners {
		if i == last {
			listener.Receive(buffer)
		} else {
			listener.Receive(buffer.Copy())
		}
	}
}

func (b *Broadcaster) snapshot() []Listener {
	listeners := b.listeners.Load()
	if listeners == nil {
		return nil
	}
	return *listeners
}

// sameListener compares a and b only if their dynamic types are comparable.
func sameListener(a, b Listener) bool {
	typeA := reflect.TypeOf(a)
	if typeA != reflect.TypeOf(b) || typeA == nil || !typeA.Comparable() {
		return false
	}
	return a == b
}
