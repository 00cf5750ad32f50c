package tracking

import (
	"context"
	"time"

	"github.com/teslashibe/go-pupper/pkg/robot"
)

// State is the phase of a control run.
type State string

// Acquisition states. Centered and TimedOut are terminal.
const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateTracking  State = "tracking"
	StateCentered  State = "centered"
	StateTimedOut  State = "timed_out"
)

// Heading-turn states and shared terminal states.
const (
	StateTurning  State = "turning"
	StateReached  State = "reached"
	StateCanceled State = "canceled"
	StateFailed   State = "failed"
)

// Terminal reports whether no further ticks follow s.
func (s State) Terminal() bool {
	switch s {
	case StateCentered, StateTimedOut, StateReached, StateCanceled, StateFailed:
		return true
	}
	return false
}

// Kind names the controller that produced a run.
type Kind string

const (
	KindHeading Kind = "heading"
	KindClass   Kind = "class"
)

// Event is emitted to the Observer on every state change and on run end.
type Event struct {
	RunID   string                `json:"run_id"`
	Kind    Kind                  `json:"kind"`
	State   State                 `json:"state"`
	Tick    int                   `json:"tick"`
	Error   float64               `json:"error"` // Heading error (rad) or normalized offset
	Command robot.VelocityCommand `json:"command"`
	Elapsed time.Duration         `json:"elapsed"`
	Err     string                `json:"err,omitempty"`
}

// Observer receives run events. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// Result summarizes a finished run.
type Result struct {
	RunID   string        `json:"run_id"`
	Kind    Kind          `json:"kind"`
	State   State         `json:"state"`
	Ticks   int           `json:"ticks"` // Motion commands published
	Elapsed time.Duration `json:"elapsed"`
	Class   string        `json:"class,omitempty"`
	ClassID int           `json:"class_id,omitempty"`
	Target  float64       `json:"target,omitempty"`
}

type runIDKey struct{}

// WithRunID attaches a run id to ctx; controllers use it for leases and events.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run id attached to ctx, if any.
func RunIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}
