// Package dsp provides the signal processing building blocks of the channelizer: a numerically
// controlled oscillator, windowed-sinc FIR design, the multi-stage decimation filter and some
// helpers to analyze complex sample streams.
package dsp

import (
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Power returns the mean power of the given interleaved I/Q samples.
func Power[T Number](iq []T) T {
	count := len(iq) / 2
	if count == 0 {
		return 0
	}
	var sum T
	for i := 0; i < count; i++ {
		inphase := iq[2*i]
		quadrature := iq[2*i+1]
		sum += inphase*inphase + quadrature*quadrature
	}
	return sum / T(count)
}

// RollingMean calculates the mean over n values.
type RollingMean[T Number] struct {
	values []T
	n      T
	next   int

	sum  T
	mean T
}

// NewRollingMean with size n.
func NewRollingMean[T Number](n int) *RollingMean[T] {
	return &RollingMean[T]{
		values: make([]T, n),
		n:      T(n),
	}
}

// Put a new value into the rolling window and get the new mean back.
func (m *RollingMean[T]) Put(value T) T {
	m.sum -= m.values[m.next]
	m.values[m.next] = value
	m.sum += value
	m.mean = m.sum / m.n
	m.next = (m.next + 1) % len(m.values)
	return m.mean
}

// Get the current mean value.
func (m *RollingMean[T]) Get() T {
	return m.mean
}

// Reset the rolling window.
func (m *RollingMean[T]) Reset() {
	clear(m.values)
	m.next = 0
	m.sum = 0
	m.mean = 0
}
