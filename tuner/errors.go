package tuner

import "github.com/pkg/errors"

var (
	// ErrExpended is returned when a stopped channel source is started again. Request a new one from the tuner instead.
	ErrExpended = errors.New("channel source is expended")
	// ErrScheduleRejected is returned when the decimation of a channel source cannot be scheduled.
	ErrScheduleRejected = errors.New("decimation task rejected")
	// ErrTunerUnavailable is returned when the tuner cannot provide its frequency or sample rate.
	ErrTunerUnavailable = errors.New("tuner unavailable")
	// ErrChannelUnavailable is returned when the requested channel is not within the tuned bandwidth.
	ErrChannelUnavailable = errors.New("channel unavailable")
)
