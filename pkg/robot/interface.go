// Package robot provides the velocity output path for the robot base.
//
// Every motion command flows through a Commander, which owns the stop
// invariant and hands out a single ownership Lease so that only one control
// loop drives the base at a time. Sinks are small transport adapters; the
// Commander never cares which one it is talking to.
package robot

import "context"

// Sink delivers velocity commands to the robot base.
// Publish is fire-and-forget: one attempt, errors go back to the caller.
type Sink interface {
	Publish(ctx context.Context, cmd VelocityCommand) error
}

// YawSource provides the latest heading estimate in radians.
// ok is false until the first reading has arrived.
type YawSource interface {
	Yaw() (yaw float64, ok bool)
}

// Ensure implementations satisfy the interfaces.
var (
	_ Sink      = (*HTTPSink)(nil)
	_ Sink      = (*SerialSink)(nil)
	_ Sink      = (*RecordingSink)(nil)
	_ YawSource = (*Heading)(nil)
)
