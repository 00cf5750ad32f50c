package rosbridge

import "errors"

var (
	// ErrClosed is returned when using a client after Close or after the
	// connection dropped.
	ErrClosed = errors.New("rosbridge: connection closed")

	// ErrNoResults marks a detection that carries no hypothesis.
	ErrNoResults = errors.New("rosbridge: detection has no results")
)
