// Package tracking implements the closed-loop turning behaviours: turning
// to an absolute heading and turning until a detected object class is
// centred in the camera frame.
//
// Controllers own no transport. The host builds a Deps value once and hands
// it to every controller; the controllers pull the latest yaw and detections
// from it on each tick and publish through a robot.Commander lease.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/perception"
	"github.com/teslashibe/go-pupper/pkg/robot"
)

// DetectionSource returns the latest complete detection snapshot.
type DetectionSource interface {
	Snapshot() perception.DetectionSet
}

// Deps is the explicit context shared by the controllers.
// Commander is always required; Yaw is required for heading turns and
// Detections plus Classes for class turns.
type Deps struct {
	Commander  *robot.Commander
	Yaw        robot.YawSource
	Detections DetectionSource
	Classes    *perception.ClassTable
	Clock      timeutil.Clock
	Logger     *slog.Logger
	Observer   Observer
}

func (d Deps) withDefaults(component string) Deps {
	if d.Clock == nil {
		d.Clock = timeutil.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = log.Component(component)
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	return d
}

// runID returns the id attached to ctx or a fresh one.
func runID(ctx context.Context) string {
	if id, ok := RunIDFrom(ctx); ok {
		return id
	}
	return uuid.NewString()
}

// finish stops the robot and folds a failed stop into cause.
func finish(ctx context.Context, lease *robot.Lease, cause error) error {
	if err := lease.Stop(ctx); err != nil {
		if cause == nil {
			return err
		}
		return errors.Join(cause, err)
	}
	return cause
}

// wait blocks until the next tick or until ctx ends.
func wait(ctx context.Context, ticker timeutil.Ticker) {
	select {
	case <-ctx.Done():
	case <-ticker.C():
	}
}

func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
