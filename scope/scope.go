// Package scope provides a visualisation of the channelizer's inner workings in form of
// spectral and time domain plots that are streamed to remote clients.
package scope

import (
	"time"
)

type StreamID string
type ChannelID string
type MarkerID string

type Frame struct {
	Stream    StreamID
	Timestamp time.Time
}

type TimeFrame struct {
	Frame
	Values map[ChannelID]float64
}

type SpectralFrame struct {
	Frame
	FromFrequency    float64
	ToFrequency      float64
	Values           []float64
	FrequencyMarkers map[MarkerID]float64
	MagnitudeMarkers map[MarkerID]float64
}

// Scope shows frames.
type Scope interface {
	ShowTimeFrame(*TimeFrame)
	ShowSpectralFrame(*SpectralFrame)
}

// NullScope discards all frames.
type NullScope struct{}

func NewNullScope() *NullScope {
	return &NullScope{}
}

func (s *NullScope) ShowTimeFrame(*TimeFrame) {}

func (s *NullScope) ShowSpectralFrame(*SpectralFrame) {}
