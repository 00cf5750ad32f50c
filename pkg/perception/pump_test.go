package perception

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
)

type scriptedSource struct {
	calls int
	fail  map[int]bool
}

func (s *scriptedSource) Frame(context.Context) ([]byte, error) {
	n := s.calls
	s.calls++
	if s.fail[n] {
		return nil, errors.New("camera unavailable")
	}
	return []byte{byte(n)}, nil
}

// frameDetector reports one detection whose x is the frame's first byte.
type frameDetector struct{}

func (frameDetector) Detect(jpeg []byte) ([]Detection, error) {
	return []Detection{{ClassID: 16, BBoxCenterX: float64(jpeg[0])}}, nil
}

func runPump(t *testing.T, src FrameSource, ticks int) (*Pump, *Buffer) {
	t.Helper()
	clock := timeutil.NewStepClock(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.OnAdvance(func(time.Time) {
		if clock.Ticks() == ticks {
			cancel()
		}
	})

	buf := NewBuffer()
	p := &Pump{
		Source:   src,
		Detector: frameDetector{},
		Buffer:   buf,
		Interval: 100 * time.Millisecond,
		Clock:    clock,
		Logger:   log.Discard(),
	}
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	return p, buf
}

func TestPump_PublishesLatestFrame(t *testing.T) {
	p, buf := runPump(t, &scriptedSource{}, 3)

	if p.Frames() != 3 || p.Failures() != 0 {
		t.Errorf("frames=%d failures=%d, want 3/0", p.Frames(), p.Failures())
	}
	d, ok := buf.Snapshot().First(16)
	if !ok || d.BBoxCenterX != 2 {
		t.Errorf("latest detection = %+v, %v; want x=2", d, ok)
	}
	if buf.Snapshot().Stamp.IsZero() {
		t.Error("snapshot not stamped")
	}
}

func TestPump_FailureKeepsPreviousSnapshot(t *testing.T) {
	p, buf := runPump(t, &scriptedSource{fail: map[int]bool{1: true, 2: true}}, 3)

	if p.Failures() != 2 {
		t.Errorf("failures = %d, want 2", p.Failures())
	}
	if d, _ := buf.Snapshot().First(16); d.BBoxCenterX != 0 {
		t.Errorf("snapshot replaced by a failed pass: %+v", d)
	}
}
