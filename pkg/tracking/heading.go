package tracking

import (
	"context"
	"fmt"
	"math"

	"github.com/teslashibe/go-pupper/pkg/robot"
)

// HeadingController turns the robot in place to an absolute yaw.
//
// The control law is bang-bang: every tick commands ±angularVelocity with
// the sign of the wrapped heading error. There is no timeout. If the yaw
// source stops updating, the loop runs until ctx is cancelled.
type HeadingController struct {
	deps Deps
	cfg  Config
}

// NewHeadingController creates a heading controller.
func NewHeadingController(deps Deps, cfg Config) *HeadingController {
	return &HeadingController{
		deps: deps.withDefaults("heading"),
		cfg:  cfg,
	}
}

// TurnToHeading rotates until |NormalizeAngle(target - yaw)| <= tolerance,
// then stops. All angles are radians.
func (h *HeadingController) TurnToHeading(ctx context.Context, targetYaw, tolerance, angularVelocity float64) (Result, error) {
	id := runID(ctx)
	res := Result{RunID: id, Kind: KindHeading, State: StateIdle, Target: targetYaw}
	logger := h.deps.Logger.With("run_id", id)

	lease, err := h.deps.Commander.Acquire(ctx, id)
	if err != nil {
		return res, fmt.Errorf("acquire commander: %w", err)
	}
	defer lease.Release()

	clock := h.deps.Clock
	start := clock.Now()
	ticker := clock.NewTicker(h.cfg.LoopRate)
	defer ticker.Stop()

	logger.Info("turning to heading", "target_deg", Degrees(targetYaw), "tolerance", tolerance)

	emit := func(state State, tick int, e float64, cmd robot.VelocityCommand, err error) {
		res.State = state
		res.Elapsed = clock.Since(start)
		h.deps.Observer.Observe(Event{
			RunID: id, Kind: KindHeading, State: state, Tick: tick, Error: e,
			Command: cmd, Elapsed: res.Elapsed, Err: errString(err),
		})
	}

	var yaw float64
	for tick := 0; ; tick++ {
		if ctx.Err() != nil {
			err := finish(ctx, lease, canceled(ctx))
			emit(StateCanceled, tick, 0, robot.Zero(), err)
			return res, err
		}

		current, ok := h.deps.Yaw.Yaw()
		switch {
		case ok:
			yaw = current
		case tick == 0:
			logger.Warn("no heading reading, not moving")
			return res, ErrNoHeading
		}

		e := NormalizeAngle(targetYaw - yaw)
		if math.Abs(e) <= tolerance {
			err := finish(ctx, lease, nil)
			if err != nil {
				emit(StateFailed, tick, e, robot.Zero(), err)
				return res, err
			}
			logger.Info("reached target heading", "ticks", res.Ticks, "error", e)
			emit(StateReached, tick, e, robot.Zero(), nil)
			return res, nil
		}

		w := angularVelocity
		if e < 0 {
			w = -angularVelocity
		}
		cmd := robot.Rotate(w)
		if tick == 0 {
			emit(StateTurning, tick, e, cmd, nil)
		}

		if err := lease.Publish(ctx, cmd); err != nil {
			err = finish(ctx, lease, err)
			emit(StateFailed, tick, e, cmd, err)
			return res, err
		}
		res.Ticks++
		logger.Debug("heading tick", "tick", tick, "yaw", yaw, "error", e, "angular_z", w)

		wait(ctx, ticker)
	}
}
