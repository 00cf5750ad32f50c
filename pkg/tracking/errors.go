package tracking

import "errors"

var (
	// ErrConfiguration is returned when a call cannot start, e.g. the target
	// class is unknown. No command has been published.
	ErrConfiguration = errors.New("tracking: configuration error")

	// ErrTimeout is returned when acquisition runs out of time. The robot has
	// already been stopped.
	ErrTimeout = errors.New("tracking: timed out")

	// ErrCanceled is returned when the caller's context ends mid-loop. The
	// robot has already been stopped.
	ErrCanceled = errors.New("tracking: canceled")

	// ErrNoHeading is returned when no yaw reading exists when a heading turn
	// starts. No command has been published.
	ErrNoHeading = errors.New("tracking: no heading available")
)
