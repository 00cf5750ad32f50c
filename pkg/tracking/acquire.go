package tracking

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/teslashibe/go-pupper/pkg/robot"
)

// AcquisitionController rotates the robot until an object of a given class
// is centred in the camera frame.
//
// Each tick it takes the first detection of the target class in the latest
// snapshot, in producer order. Detections are not ranked by confidence or
// size. A visible target is tracked proportionally; no target means a
// constant-rate search spin. Flickering detections switch between the two
// states tick by tick; there is no hysteresis.
type AcquisitionController struct {
	deps Deps
	cfg  Config
}

// NewAcquisitionController creates an acquisition controller.
func NewAcquisitionController(deps Deps, cfg Config) *AcquisitionController {
	return &AcquisitionController{
		deps: deps.withDefaults("acquisition"),
		cfg:  cfg,
	}
}

// TurnToClass turns until the first detection of className lies within
// tolerance of the image centre (normalized units, ±1 at the edges) or
// until timeout elapses.
//
// An unknown class fails with ErrConfiguration before anything is
// published. Running out of time stops the robot and returns ErrTimeout;
// the budget runs from call entry, so a run that waited out its whole
// timeout for the commander only sends the stop.
func (a *AcquisitionController) TurnToClass(ctx context.Context, className string, tolerance, angularVelocity float64, timeout time.Duration) (Result, error) {
	id := runID(ctx)
	res := Result{RunID: id, Kind: KindClass, State: StateIdle, Class: className}
	logger := a.deps.Logger.With("run_id", id, "class", className)

	classID, err := a.deps.Classes.Lookup(className)
	if err != nil {
		logger.Error("class not found in class table")
		return res, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	res.ClassID = classID

	// The budget includes time spent waiting for the commander.
	clock := a.deps.Clock
	start := clock.Now()

	lease, err := a.deps.Commander.Acquire(ctx, id)
	if err != nil {
		return res, fmt.Errorf("acquire commander: %w", err)
	}
	defer lease.Release()

	ticker := clock.NewTicker(a.cfg.LoopRate)
	defer ticker.Stop()

	logger.Info("turning to face class", "class_id", classID, "timeout", timeout)

	emit := func(state State, tick int, e float64, cmd robot.VelocityCommand, err error) {
		if state == res.State && !state.Terminal() {
			return
		}
		res.State = state
		a.deps.Observer.Observe(Event{
			RunID: id, Kind: KindClass, State: state, Tick: tick, Error: e,
			Command: cmd, Elapsed: res.Elapsed, Err: errString(err),
		})
	}

	for tick := 0; ; tick++ {
		res.Elapsed = clock.Since(start)

		if ctx.Err() != nil {
			err := finish(ctx, lease, canceled(ctx))
			emit(StateCanceled, tick, 0, robot.Zero(), err)
			return res, err
		}

		if res.Elapsed >= timeout {
			logger.Warn("timeout reached while searching for the object", "ticks", res.Ticks)
			err := finish(ctx, lease, fmt.Errorf("%w after %v", ErrTimeout, timeout))
			emit(StateTimedOut, tick, 0, robot.Zero(), err)
			return res, err
		}

		var (
			state State
			cmd   robot.VelocityCommand
			e     float64
		)
		if det, ok := a.deps.Detections.Snapshot().First(classID); ok {
			e = OffsetError(det.BBoxCenterX, a.cfg.ImageWidth)
			if math.Abs(e) <= tolerance {
				err := finish(ctx, lease, nil)
				if err != nil {
					emit(StateFailed, tick, e, robot.Zero(), err)
					return res, err
				}
				logger.Info("object centered", "ticks", res.Ticks, "offset", e)
				emit(StateCentered, tick, e, robot.Zero(), nil)
				return res, nil
			}
			state, cmd = StateTracking, robot.Rotate(-angularVelocity*e)
		} else {
			state, cmd = StateSearching, robot.Rotate(angularVelocity)
		}

		if state != res.State {
			logger.Debug("state change", "from", res.State, "to", state, "tick", tick)
		}
		emit(state, tick, e, cmd, nil)

		if err := lease.Publish(ctx, cmd); err != nil {
			err = finish(ctx, lease, err)
			emit(StateFailed, tick, e, cmd, err)
			return res, err
		}
		res.Ticks++

		wait(ctx, ticker)
	}
}
