package tuner

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ftl/channelizer/dsp"
)

// Config of the channel sources. The configuration is fixed when a channel source is created.
type Config struct {
	// ChannelRate is the sample rate of the decimated channel.
	ChannelRate int
	// PassBand is the one-sided bandwidth in Hz that passes the decimation filter.
	PassBand int
	// StopBandAttenuation in dB.
	StopBandAttenuation float64
	Window              dsp.WindowType

	// QueueCapacity is the number of wideband buffers a channel source can hold before it overflows.
	QueueCapacity int
	// ResetThreshold is the number of buffers the queue must drain down to before it accepts buffers again.
	ResetThreshold int

	// ProcessingPeriod is the period of the decimation task. Keep it unrelated to the tuner's buffer period.
	ProcessingPeriod time.Duration
	// BatchSize is the maximum number of buffers that are processed in one run of the decimation task.
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		ChannelRate:         48000,
		PassBand:            12000,
		StopBandAttenuation: 60,
		Window:              dsp.Hamming,
		QueueCapacity:       300,
		ResetThreshold:      100,
		ProcessingPeriod:    9 * time.Millisecond,
		BatchSize:           20,
	}
}

func (c Config) Validate() error {
	switch {
	case c.ChannelRate <= 0:
		return errors.Errorf("channel rate must be positive: %d", c.ChannelRate)
	case c.PassBand <= 0 || 2*c.PassBand >= c.ChannelRate:
		return errors.Errorf("pass band %d must be within (0, %d)", c.PassBand, c.ChannelRate/2)
	case c.StopBandAttenuation <= 0:
		return errors.Errorf("stop band attenuation must be positive: %f", c.StopBandAttenuation)
	case c.QueueCapacity < 1:
		return errors.Errorf("queue capacity must be positive: %d", c.QueueCapacity)
	case c.ResetThreshold < 0 || c.ResetThreshold >= c.QueueCapacity:
		return errors.Errorf("reset threshold %d must be within [0, %d)", c.ResetThreshold, c.QueueCapacity)
	case c.ProcessingPeriod <= 0:
		return errors.Errorf("processing period must be positive: %v", c.ProcessingPeriod)
	case c.BatchSize < 1:
		return errors.Errorf("batch size must be positive: %d", c.BatchSize)
	}
	return nil
}

// FilterConfig for the decimation filter of a channel source.
func (c Config) FilterConfig() dsp.FilterConfig {
	return dsp.FilterConfig{
		OutputRate:          c.ChannelRate,
		PassBand:            c.PassBand,
		StopBandAttenuation: c.StopBandAttenuation,
		Window:              c.Window,
	}
}
