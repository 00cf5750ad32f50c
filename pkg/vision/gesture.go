package vision

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/perception"
)

// Gesture is a recognized hand pose.
type Gesture string

const (
	GestureNone   Gesture = ""
	GestureOpen   Gesture = "open"
	GestureClosed Gesture = "closed"
)

// DefaultGesturePrompt is the question asked about every frame.
const DefaultGesturePrompt = "Is the fist open or closed?"

// ParseGesture reads a model answer. "open" wins when both words appear.
func ParseGesture(answer string) Gesture {
	a := strings.ToLower(answer)
	switch {
	case strings.Contains(a, "open"):
		return GestureOpen
	case strings.Contains(a, "closed"):
		return GestureClosed
	}
	return GestureNone
}

// Mover is the part of the robot commander the gesture loop drives.
type Mover interface {
	Move(ctx context.Context, velocity float64) error
	Stop(ctx context.Context) error
}

// GestureLoop polls the camera and drives forward on an open hand, stops on
// a closed fist.
type GestureLoop struct {
	Source   perception.FrameSource
	Vision   Describer
	Robot    Mover
	Prompt   string
	Velocity float64
	Interval time.Duration
	Clock    timeutil.Clock
	Logger   *slog.Logger
}

// Run polls until ctx is done. Frame and model errors are logged and the
// loop continues.
func (g *GestureLoop) Run(ctx context.Context) error {
	clock := g.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger := g.Logger
	if logger == nil {
		logger = log.Component("gesture")
	}
	interval := g.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		gesture, err := g.Step(ctx)
		if err != nil {
			logger.Warn("gesture step failed", "error", err)
		} else if gesture != GestureNone {
			logger.Info("gesture", "gesture", gesture)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C():
		}
	}
}

// Step classifies one frame and acts on it.
func (g *GestureLoop) Step(ctx context.Context) (Gesture, error) {
	frame, err := g.Source.Frame(ctx)
	if err != nil {
		return GestureNone, err
	}
	prompt := g.Prompt
	if prompt == "" {
		prompt = DefaultGesturePrompt
	}
	answer, err := g.Vision.Describe(ctx, frame, prompt)
	if err != nil {
		return GestureNone, err
	}

	gesture := ParseGesture(answer)
	switch gesture {
	case GestureOpen:
		return gesture, g.Robot.Move(ctx, g.Velocity)
	case GestureClosed:
		return gesture, g.Robot.Stop(ctx)
	}
	return gesture, nil
}
