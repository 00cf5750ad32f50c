package perception

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
)

// FrameSource returns the latest camera frame as JPEG.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Detector classifies the objects in a JPEG frame.
type Detector interface {
	Detect(jpeg []byte) ([]Detection, error)
}

// DefaultPumpInterval is the default time between detection passes.
const DefaultPumpInterval = 200 * time.Millisecond

// Pump feeds a Buffer from a frame source and a detector. A failed frame
// or detection leaves the previous snapshot in place.
type Pump struct {
	Source   FrameSource
	Detector Detector
	Buffer   *Buffer
	Interval time.Duration
	Clock    timeutil.Clock
	Logger   *slog.Logger

	frames   atomic.Uint64
	failures atomic.Uint64
}

// Run detects until ctx is done and returns ctx.Err().
func (p *Pump) Run(ctx context.Context) error {
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger := p.Logger
	if logger == nil {
		logger = log.Component("pump")
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPumpInterval
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("detection pump started", "interval", interval)
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("detection pump stopped", "frames", p.frames.Load(), "failures", p.failures.Load())
			return err
		}

		if err := p.step(ctx, clock); err != nil {
			p.failures.Add(1)
			logger.Debug("detection pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C():
		}
	}
}

func (p *Pump) step(ctx context.Context, clock timeutil.Clock) error {
	frame, err := p.Source.Frame(ctx)
	if err != nil {
		return err
	}
	dets, err := p.Detector.Detect(frame)
	if err != nil {
		return err
	}
	p.Buffer.Update(DetectionSet{Detections: dets, Stamp: clock.Now()})
	p.frames.Add(1)
	return nil
}

// Frames returns the number of successful detection passes.
func (p *Pump) Frames() uint64 { return p.frames.Load() }

// Failures returns the number of failed passes.
func (p *Pump) Failures() uint64 { return p.failures.Load() }
