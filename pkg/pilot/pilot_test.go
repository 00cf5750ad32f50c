package pilot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/perception"
	"github.com/teslashibe/go-pupper/pkg/robot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

type fixture struct {
	sink    *robot.RecordingSink
	heading *robot.Heading
	buffer  *perception.Buffer
	events  []tracking.Event
	mu      sync.Mutex
}

func (f *fixture) Observe(ev tracking.Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func newPilot(t *testing.T, clock timeutil.Clock) (*Pilot, *fixture) {
	t.Helper()
	f := &fixture{
		sink:    &robot.RecordingSink{},
		heading: &robot.Heading{},
		buffer:  perception.NewBuffer(),
	}
	cmd := robot.NewCommander(f.sink, robot.WithClock(clock), robot.WithLogger(log.Discard()))
	deps := tracking.Deps{
		Commander:  cmd,
		Yaw:        f.heading,
		Detections: f.buffer,
		Classes:    perception.COCOClassTable(),
		Clock:      clock,
		Logger:     log.Discard(),
	}
	cfg := tracking.DefaultConfig()
	cfg.LoopRate = 10 * time.Millisecond
	p := New(deps, cfg, WithObserver(f), WithLogger(log.Discard()))
	t.Cleanup(p.Close)
	return p, f
}

func TestPilot_TurnToClassRecordsRun(t *testing.T) {
	p, f := newPilot(t, timeutil.NewStepClock(time.Unix(0, 0)))
	f.buffer.Update(perception.DetectionSet{Detections: []perception.Detection{{ClassID: 16, BBoxCenterX: 700}}})

	res, err := p.TurnToClass(context.Background(), ClassRequest{Class: "dog", Tolerance: 0.05})
	require.NoError(t, err)
	assert.Equal(t, tracking.StateCentered, res.State)

	run, err := p.Run(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StateCentered, run.State)
	assert.True(t, run.Done())
	assert.Empty(t, run.Err)

	st := p.Status()
	require.NotNil(t, st.Last)
	assert.Equal(t, res.RunID, st.Last.ID)
	assert.Empty(t, st.Active)
	assert.Equal(t, 1, st.Detections)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	assert.Equal(t, res.RunID, f.events[0].RunID)
}

func TestPilot_UnknownClassCreatesNoRun(t *testing.T) {
	p, f := newPilot(t, timeutil.NewStepClock(time.Unix(0, 0)))

	_, err := p.StartClass(ClassRequest{Class: "nonexistent_class"})
	assert.ErrorIs(t, err, tracking.ErrConfiguration)
	assert.ErrorIs(t, err, perception.ErrClassNotFound)

	_, err = p.TurnToClass(context.Background(), ClassRequest{Class: "nonexistent_class"})
	assert.ErrorIs(t, err, tracking.ErrConfiguration)

	assert.Empty(t, p.Runs())
	assert.Zero(t, f.sink.Len())
}

func TestPilot_StartClassTimesOutInBackground(t *testing.T) {
	p, f := newPilot(t, timeutil.NewStepClock(time.Unix(0, 0)))

	id, err := p.StartClass(ClassRequest{Class: "dog", Timeout: 0.5})
	require.NoError(t, err)
	p.Close()

	run, err := p.Run(id)
	require.NoError(t, err)
	assert.Equal(t, tracking.StateTimedOut, run.State)
	assert.Contains(t, run.Err, "timed out")
	assert.Equal(t, 50, run.Result.Ticks) // 0.5 s at a 10 ms loop

	last, _ := f.sink.Last()
	assert.True(t, last.IsZero())
}

func TestPilot_StopCancelsActiveRun(t *testing.T) {
	p, f := newPilot(t, timeutil.RealClock{})
	f.heading.Set(0) // never moves, so the turn never completes

	id := p.StartHeading(HeadingRequest{Target: 2})
	require.Eventually(t, func() bool { return f.sink.Len() > 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, p.Status().Active, 1)

	require.NoError(t, p.Stop(context.Background()))
	p.Close()

	run, err := p.Run(id)
	require.NoError(t, err)
	assert.Equal(t, tracking.StateCanceled, run.State)
	assert.Contains(t, run.Err, "canceled")

	last, _ := f.sink.Last()
	assert.True(t, last.IsZero())
}

func TestPilot_CancelUnknownRun(t *testing.T) {
	p, _ := newPilot(t, timeutil.NewStepClock(time.Unix(0, 0)))
	assert.ErrorIs(t, p.Cancel("nope"), ErrUnknownRun)
	_, err := p.Run("nope")
	assert.ErrorIs(t, err, ErrUnknownRun)
}

func TestPilot_HeadingDefaults(t *testing.T) {
	p, f := newPilot(t, timeutil.NewStepClock(time.Unix(0, 0)))
	f.heading.Set(1.0)

	res, err := p.TurnToHeading(context.Background(), HeadingRequest{Target: 1.005})
	require.NoError(t, err)
	assert.Equal(t, tracking.StateReached, res.State)
	assert.Equal(t, []robot.VelocityCommand{robot.Zero()}, f.sink.Commands())

	yaw := p.Status().Yaw
	require.NotNil(t, yaw)
	assert.Equal(t, 1.0, *yaw)
}

func TestPilot_Classes(t *testing.T) {
	p, _ := newPilot(t, timeutil.NewStepClock(time.Unix(0, 0)))
	names := p.Classes()
	require.Len(t, names, 80)
	assert.Equal(t, "person", names[0])
	assert.Equal(t, "dog", names[16])
}
