// Package tuner implements the digital down conversion of a wideband tuner's sample stream into
// narrowband channels.
//
// A Tuner pushes wideband complex sample buffers to its sample listeners. A ChannelSource is one of
// these listeners: it shifts the requested channel to baseband, decimates it to the channel rate,
// and hands the result to exactly one consumer. Changes of the tuner frequency, the sample rate,
// and the frequency correction are propagated as frequency.Event values, never through the
// sample stream.
package tuner

import (
	"fmt"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
)

// Channel describes a narrowband channel within the tuned bandwidth.
type Channel struct {
	Frequency int64
	Bandwidth int
}

func (c Channel) String() string {
	return fmt.Sprintf("%dHz/%dHz", c.Frequency, c.Bandwidth)
}

// Controller gives access to the tuning parameters of a tuner.
type Controller interface {
	Frequency() (int64, error)
	SampleRate() (int, error)
	AddFrequencyListener(listener frequency.Listener)
	RemoveFrequencyListener(listener frequency.Listener)
}

// Tuner provides wideband complex samples.
type Tuner interface {
	Controller() Controller
	AddSampleListener(listener sample.Listener)
	RemoveSampleListener(listener sample.Listener)
	// ReleaseChannel is called by a channel source when it stops.
	ReleaseChannel(source *ChannelSource)
}

// HeartbeatListener is called every time the decimation of a channel source runs. This allows
// consumers to do periodic work on the decimation goroutine.
type HeartbeatListener interface {
	Heartbeat()
}

type HeartbeatFunc func()

func (f HeartbeatFunc) Heartbeat() {
	f()
}

// State of a channel source.
type State int32

const (
	Constructed State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}
