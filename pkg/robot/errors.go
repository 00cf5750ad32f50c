package robot

import "errors"

var (
	// ErrLeaseReleased is returned when publishing through a released lease.
	ErrLeaseReleased = errors.New("robot: lease released")

	// ErrSinkClosed is returned when publishing to a closed sink.
	ErrSinkClosed = errors.New("robot: sink closed")
)
