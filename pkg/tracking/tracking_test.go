package tracking

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/perception"
	"github.com/teslashibe/go-pupper/pkg/robot"
)

// rig wires controllers to a recording sink and a simulated clock.
type rig struct {
	sink      *robot.RecordingSink
	commander *robot.Commander
	clock     *timeutil.StepClock
	heading   *robot.Heading
	buffer    *perception.Buffer
	events    *eventLog
	deps      Deps
	cfg       Config
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.State
	}
	return out
}

func newRig() *rig {
	r := &rig{
		sink:    &robot.RecordingSink{},
		clock:   timeutil.NewStepClock(time.Unix(1700000000, 0)),
		heading: &robot.Heading{},
		buffer:  perception.NewBuffer(),
		events:  &eventLog{},
		cfg:     DefaultConfig(),
	}
	r.commander = robot.NewCommander(r.sink, robot.WithClock(r.clock), robot.WithLogger(log.Discard()))
	r.deps = Deps{
		Commander:  r.commander,
		Yaw:        r.heading,
		Detections: r.buffer,
		Classes:    perception.NewClassTable(map[string]int{"person": 0, "dog": 5}),
		Clock:      r.clock,
		Logger:     log.Discard(),
		Observer:   r.events,
	}
	return r
}

// integrateYaw makes every published command rotate the simulated base for
// one loop period.
func (r *rig) integrateYaw() {
	dt := r.cfg.LoopRate.Seconds()
	r.sink.OnPublish = func(cmd robot.VelocityCommand) {
		yaw, _ := r.heading.Yaw()
		r.heading.Set(yaw + cmd.Angular.Z*dt)
	}
}

func TestNormalizeAngle_RangeAndIdempotence(t *testing.T) {
	inputs := []float64{0, math.Pi, -math.Pi, 3 * math.Pi, -3 * math.Pi, 2 * math.Pi, 1e-12, -1e-12}
	for x := -50.0; x <= 50.0; x += 0.37 {
		inputs = append(inputs, x)
	}

	for _, in := range inputs {
		n := NormalizeAngle(in)
		if !(n > -math.Pi && n <= math.Pi) {
			t.Errorf("NormalizeAngle(%v) = %v, outside (-π, π]", in, n)
		}
		if again := NormalizeAngle(n); again != n {
			t.Errorf("NormalizeAngle not idempotent at %v: %v then %v", in, n, again)
		}
	}
}

func TestNormalizeAngle_Wraps(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{1.5 * math.Pi, -0.5 * math.Pi},
		{-1.5 * math.Pi, 0.5 * math.Pi},
		{-math.Pi, math.Pi},
		{-3 * math.Pi, math.Pi},
		{2*math.Pi + 0.25, 0.25},
	}
	for _, tt := range tests {
		got := NormalizeAngle(tt.in)
		if got <= -math.Pi || got > math.Pi {
			t.Errorf("NormalizeAngle(%v) = %v, out of range", tt.in, got)
		}
		// Compare on the circle: -3π lands a rounding step away from ±π.
		if d := math.Atan2(math.Sin(got-tt.want), math.Cos(got-tt.want)); math.Abs(d) > 1e-9 {
			t.Errorf("NormalizeAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := NormalizeAngle(-math.Pi); got != math.Pi {
		t.Errorf("NormalizeAngle(-π) = %v, want exactly π", got)
	}
}

func TestOffsetError(t *testing.T) {
	tests := []struct {
		x, want float64
	}{
		{700, 0},
		{0, -1},
		{1400, 1},
		{1050, 0.5},
	}
	for _, tt := range tests {
		if got := OffsetError(tt.x, 1400); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("OffsetError(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestTurnToHeading_ConvergesWithinBound(t *testing.T) {
	tests := []struct {
		name            string
		start, target   float64
		tolerance       float64
		angularVelocity float64
	}{
		{"left turn", 0, 1.05, 0.06, 1.0},
		{"right turn", 0.5, -0.5, 0.06, 1.0},
		{"shortest way across ±π", 3.0, -3.0, 0.03, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig()
			r.integrateYaw()
			r.heading.Set(tt.start)

			initial := math.Abs(NormalizeAngle(tt.target - tt.start))
			bound := int(math.Ceil(initial / tt.angularVelocity / r.cfg.LoopRate.Seconds()))

			ctrl := NewHeadingController(r.deps, r.cfg)
			res, err := ctrl.TurnToHeading(context.Background(), tt.target, tt.tolerance, tt.angularVelocity)
			if err != nil {
				t.Fatalf("TurnToHeading: %v", err)
			}
			if res.State != StateReached {
				t.Errorf("state = %s, want reached", res.State)
			}
			if res.Ticks > bound {
				t.Errorf("took %d ticks, bound is %d", res.Ticks, bound)
			}

			cmds := r.sink.Commands()
			last := cmds[len(cmds)-1]
			if !last.IsZero() {
				t.Errorf("last command %v is not a stop", last)
			}
			for i, cmd := range cmds[:len(cmds)-1] {
				if math.Abs(cmd.Angular.Z) != tt.angularVelocity {
					t.Errorf("command %d magnitude %v, want %v", i, cmd.Angular.Z, tt.angularVelocity)
				}
			}

			yaw, _ := r.heading.Yaw()
			if e := NormalizeAngle(tt.target - yaw); math.Abs(e) > tt.tolerance {
				t.Errorf("final error %v exceeds tolerance", e)
			}
		})
	}
}

func TestTurnToHeading_AlreadyThere(t *testing.T) {
	r := newRig()
	r.heading.Set(0.5)

	res, err := NewHeadingController(r.deps, r.cfg).TurnToHeading(context.Background(), 0.505, 0.01, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ticks != 0 || r.sink.Len() != 1 {
		t.Errorf("expected a single stop, got %v", r.sink.Commands())
	}
}

func TestTurnToHeading_NoYawReading(t *testing.T) {
	r := newRig()

	_, err := NewHeadingController(r.deps, r.cfg).TurnToHeading(context.Background(), 1, 0.01, 1)
	if !errors.Is(err, ErrNoHeading) {
		t.Fatalf("error = %v, want ErrNoHeading", err)
	}
	if r.sink.Len() != 0 {
		t.Errorf("published %d commands before any heading was known", r.sink.Len())
	}
}

func TestTurnToHeading_CancelStopsRobot(t *testing.T) {
	r := newRig()
	r.heading.Set(0) // never updates: the loop would spin forever

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.clock.OnAdvance(func(time.Time) {
		if r.clock.Ticks() == 5 {
			cancel()
		}
	})

	res, err := NewHeadingController(r.deps, r.cfg).TurnToHeading(ctx, 1, 0.01, 1)
	if !errors.Is(err, ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want ErrCanceled wrapping context.Canceled", err)
	}
	if res.State != StateCanceled {
		t.Errorf("state = %s", res.State)
	}
	if res.Ticks != 5 {
		t.Errorf("ticks = %d, want 5", res.Ticks)
	}
	if last, _ := r.sink.Last(); !last.IsZero() {
		t.Errorf("last command %v is not a stop", last)
	}
}

func TestTurnToClass_CenteredOnFirstTick(t *testing.T) {
	r := newRig()
	r.buffer.Update(perception.DetectionSet{Detections: []perception.Detection{
		{ClassID: 5, BBoxCenterX: 700},
	}})

	res, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "dog", 0.05, 1.0, 5*time.Second)
	if err != nil {
		t.Fatalf("TurnToClass: %v", err)
	}
	if res.State != StateCentered || res.ClassID != 5 {
		t.Errorf("result = %+v", res)
	}

	want := []robot.VelocityCommand{robot.Zero()}
	if diff := cmp.Diff(want, r.sink.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestTurnToClass_TimeoutAfterTwentySearchTicks(t *testing.T) {
	r := newRig()
	const w = 0.8

	res, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "dog", 0.05, w, 2*time.Second)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if res.State != StateTimedOut {
		t.Errorf("state = %s, want timed_out", res.State)
	}

	want := make([]robot.VelocityCommand, 0, 21)
	for i := 0; i < 20; i++ {
		want = append(want, robot.Rotate(w))
	}
	want = append(want, robot.Zero())
	if diff := cmp.Diff(want, r.sink.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if r.clock.Ticks() != 20 {
		t.Errorf("loop waited %d times, want 20", r.clock.Ticks())
	}
	if diff := cmp.Diff([]State{StateSearching, StateTimedOut}, r.events.states()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestTurnToClass_UnknownClass(t *testing.T) {
	r := newRig()

	_, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "nonexistent_class", 0.05, 1, time.Second)
	if !errors.Is(err, ErrConfiguration) || !errors.Is(err, perception.ErrClassNotFound) {
		t.Fatalf("error = %v, want ErrConfiguration wrapping ErrClassNotFound", err)
	}
	if r.sink.Len() != 0 || r.commander.Stats().Published != 0 {
		t.Errorf("published %d commands on a configuration error", r.sink.Len())
	}
	if r.clock.Ticks() != 0 {
		t.Error("loop started on a configuration error")
	}
}

func TestTurnToClass_SearchTrackCenter(t *testing.T) {
	r := newRig()
	// tick 0: nothing, tick 1: right of centre, tick 2: gone, tick 3: nearly centred
	script := []perception.DetectionSet{
		{},
		{Detections: []perception.Detection{{ClassID: 0, BBoxCenterX: 700}, {ClassID: 5, BBoxCenterX: 1050}}},
		{},
		{Detections: []perception.Detection{{ClassID: 5, BBoxCenterX: 710}}},
	}
	r.clock.OnAdvance(func(time.Time) {
		if n := r.clock.Ticks(); n < len(script) {
			r.buffer.Update(script[n])
		}
	})

	res, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "dog", 0.05, 1.0, 5*time.Second)
	if err != nil {
		t.Fatalf("TurnToClass: %v", err)
	}
	if res.Ticks != 3 {
		t.Errorf("ticks = %d, want 3", res.Ticks)
	}

	want := []robot.VelocityCommand{
		robot.Rotate(1.0),
		robot.Rotate(-0.5),
		robot.Rotate(1.0),
		robot.Zero(),
	}
	if diff := cmp.Diff(want, r.sink.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	wantStates := []State{StateSearching, StateTracking, StateSearching, StateCentered}
	if diff := cmp.Diff(wantStates, r.events.states()); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestTurnToClass_FirstMatchNotBestMatch(t *testing.T) {
	r := newRig()
	r.buffer.Update(perception.DetectionSet{Detections: []perception.Detection{
		{ClassID: 5, BBoxCenterX: 1400}, // edge of frame, listed first
		{ClassID: 5, BBoxCenterX: 700},  // dead centre
	}})
	r.cfg.LoopRate = 100 * time.Millisecond

	_, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "dog", 0.05, 1.0, 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout (first detection is never centred)", err)
	}

	want := []robot.VelocityCommand{robot.Rotate(-1.0), robot.Zero()}
	if diff := cmp.Diff(want, r.sink.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

// The offset is normalized by the configured width, not the frame the
// detection came from. A target centred in a 640 px frame still reads as
// far left when the configuration says 1400.
func TestTurnToClass_UsesConfiguredImageWidth(t *testing.T) {
	r := newRig()
	r.buffer.Update(perception.DetectionSet{Detections: []perception.Detection{
		{ClassID: 5, BBoxCenterX: 320},
	}})

	_, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "dog", 0.05, 1.0, 100*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}

	cmds := r.sink.Commands()
	wantZ := -1.0 * OffsetError(320, 1400)
	if math.Abs(cmds[0].Angular.Z-wantZ) > 1e-12 {
		t.Errorf("angular.z = %v, want %v", cmds[0].Angular.Z, wantZ)
	}
}

func TestTurnToClass_PublishFailureStillStops(t *testing.T) {
	r := newRig()
	boom := errors.New("link down")
	r.sink.Err = boom
	r.sink.FailAfter = 3

	res, err := NewAcquisitionController(r.deps, r.cfg).
		TurnToClass(context.Background(), "dog", 0.05, 1.0, 5*time.Second)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if res.State != StateFailed || res.Ticks != 3 {
		t.Errorf("result = %+v", res)
	}
	if r.commander.Stats().Stops != 1 {
		t.Errorf("no stop attempted after transport failure")
	}
}

// holdCommander takes the lease so calls queue up behind it.
func holdCommander(t *testing.T, r *rig) *robot.Lease {
	t.Helper()
	lease, err := r.commander.Acquire(context.Background(), "holder")
	if err != nil {
		t.Fatal(err)
	}
	return lease
}

func waitForQueued(t *testing.T, r *rig, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.commander.Waiting() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d callers queued, want %d", r.commander.Waiting(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTurnToClass_ConcurrentCallsRunSequentially(t *testing.T) {
	r := newRig()
	ctrl := NewAcquisitionController(r.deps, r.cfg)
	holder := holdCommander(t, r)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, w := range []float64{1.0, 2.0} {
		wg.Add(1)
		go func(w float64) {
			defer wg.Done()
			_, err := ctrl.TurnToClass(context.Background(), "dog", 0.05, w, 500*time.Millisecond)
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(w)
	}
	waitForQueued(t, r, 2)
	holder.Release()
	wg.Wait()

	// The first run searches for its whole budget. The second waited that
	// long for the commander, so it only stops.
	cmds := r.sink.Commands()
	if len(cmds) != 7 {
		t.Fatalf("got %d commands, want 7: %v", len(cmds), cmds)
	}
	w := cmds[0].Angular.Z
	for i := 0; i < 5; i++ {
		if cmds[i].Angular.Z != w || cmds[i].IsZero() {
			t.Errorf("first run interleaved at %d: %v", i, cmds)
		}
	}
	if !cmds[5].IsZero() || !cmds[6].IsZero() {
		t.Errorf("runs did not end in stops: %v", cmds[5:])
	}
	for _, err := range errs {
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	}
}

func TestTurnToClass_BudgetIncludesLeaseWait(t *testing.T) {
	r := newRig()
	ctrl := NewAcquisitionController(r.deps, r.cfg)
	holder := holdCommander(t, r)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := ctrl.TurnToClass(context.Background(), "dog", 0.05, 1.0, 2*time.Second)
		done <- outcome{res, err}
	}()

	waitForQueued(t, r, 1)
	r.clock.Advance(3 * time.Second)
	holder.Release()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("TurnToClass did not return")
	}

	if !errors.Is(got.err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", got.err)
	}
	if diff := cmp.Diff([]robot.VelocityCommand{robot.Zero()}, r.sink.Commands()); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
	if got.res.Ticks != 0 || got.res.State != StateTimedOut {
		t.Errorf("result = %+v, want 0 ticks and timed_out", got.res)
	}
}

func TestRunIDFromContext(t *testing.T) {
	r := newRig()
	r.buffer.Update(perception.DetectionSet{Detections: []perception.Detection{{ClassID: 5, BBoxCenterX: 700}}})

	ctx := WithRunID(context.Background(), "run-42")
	res, _ := NewAcquisitionController(r.deps, r.cfg).TurnToClass(ctx, "dog", 0.05, 1, time.Second)
	if res.RunID != "run-42" {
		t.Errorf("RunID = %q", res.RunID)
	}
	for _, ev := range r.events.events {
		if ev.RunID != "run-42" {
			t.Errorf("event carries run id %q", ev.RunID)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.ImageWidth = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero image width accepted")
	}

	bad = DefaultConfig()
	bad.LoopRate = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero loop rate accepted")
	}
}
