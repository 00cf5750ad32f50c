// Package pilot is the host-side service that owns the controllers and the
// velocity commander. Every control run gets an id and is tracked from start
// to finish so the web API and voice loop can report on it.
package pilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
	"github.com/teslashibe/go-pupper/pkg/robot"
	"github.com/teslashibe/go-pupper/pkg/tracking"
)

// maxRuns bounds the run history.
const maxRuns = 64

// ErrUnknownRun is returned for run ids the pilot has never seen or has
// already forgotten.
var ErrUnknownRun = errors.New("pilot: unknown run")

// RunInfo describes one controller invocation.
type RunInfo struct {
	ID       string           `json:"id"`
	Kind     tracking.Kind    `json:"kind"`
	State    tracking.State   `json:"state"`
	Started  time.Time        `json:"started"`
	Finished time.Time        `json:"finished,omitzero"`
	Err      string           `json:"err,omitempty"`
	Result   *tracking.Result `json:"result,omitempty"`
}

// Done reports whether the run has finished.
func (r RunInfo) Done() bool {
	return !r.Finished.IsZero()
}

// HeadingRequest asks for a turn to an absolute yaw. Zero tolerance or
// velocity take the configured defaults.
type HeadingRequest struct {
	Target          float64 `json:"target"`
	Tolerance       float64 `json:"tolerance"`
	AngularVelocity float64 `json:"angular_velocity"`
}

// ClassRequest asks for a turn toward an object class. Timeout is in
// seconds; zero fields take the configured defaults.
type ClassRequest struct {
	Class           string  `json:"class"`
	Tolerance       float64 `json:"tolerance"`
	AngularVelocity float64 `json:"angular_velocity"`
	Timeout         float64 `json:"timeout"`
}

// Status is a point-in-time view of the robot.
type Status struct {
	Commander  robot.Stats `json:"commander"`
	Yaw        *float64    `json:"yaw,omitempty"`
	Detections int         `json:"detections"`
	Active     []RunInfo   `json:"active"`
	Last       *RunInfo    `json:"last,omitempty"`
}

type run struct {
	info   RunInfo
	cancel context.CancelFunc
}

// Pilot runs controllers on behalf of clients.
type Pilot struct {
	deps    tracking.Deps
	cfg     tracking.Config
	heading *tracking.HeadingController
	acquire *tracking.AcquisitionController
	forward tracking.Observer
	logger  *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	runs  map[string]*run
	order []string
	last  string
}

// Option configures a Pilot.
type Option func(*Pilot)

// WithObserver forwards every run event to o after the pilot has recorded it.
func WithObserver(o tracking.Observer) Option {
	return func(p *Pilot) { p.forward = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pilot) { p.logger = l }
}

// New creates a pilot. deps.Observer is replaced by the pilot itself.
func New(deps tracking.Deps, cfg tracking.Config, opts ...Option) *Pilot {
	p := &Pilot{
		cfg:  cfg,
		runs: make(map[string]*run),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.Component("pilot")
	}
	p.base, p.cancel = context.WithCancel(context.Background())

	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	deps.Observer = p
	p.deps = deps
	p.heading = tracking.NewHeadingController(deps, cfg)
	p.acquire = tracking.NewAcquisitionController(deps, cfg)
	return p
}

// Observe implements tracking.Observer.
func (p *Pilot) Observe(ev tracking.Event) {
	p.mu.Lock()
	if r, ok := p.runs[ev.RunID]; ok {
		r.info.State = ev.State
		if ev.Err != "" {
			r.info.Err = ev.Err
		}
	}
	p.mu.Unlock()

	if p.forward != nil {
		p.forward.Observe(ev)
	}
}

// TurnToHeading runs a heading turn and waits for it.
func (p *Pilot) TurnToHeading(ctx context.Context, req HeadingRequest) (tracking.Result, error) {
	req = p.headingDefaults(req)
	ctx, id := p.begin(ctx, tracking.KindHeading)
	res, err := p.heading.TurnToHeading(ctx, req.Target, req.Tolerance, req.AngularVelocity)
	p.end(id, res, err)
	return res, err
}

// TurnToClass runs an acquisition and waits for it.
func (p *Pilot) TurnToClass(ctx context.Context, req ClassRequest) (tracking.Result, error) {
	req = p.classDefaults(req)
	if err := p.checkClass(req.Class); err != nil {
		return tracking.Result{Kind: tracking.KindClass, Class: req.Class}, err
	}
	ctx, id := p.begin(ctx, tracking.KindClass)
	res, err := p.acquire.TurnToClass(ctx, req.Class, req.Tolerance, req.AngularVelocity, seconds(req.Timeout))
	p.end(id, res, err)
	return res, err
}

// StartHeading starts a heading turn in the background and returns its id.
func (p *Pilot) StartHeading(req HeadingRequest) string {
	req = p.headingDefaults(req)
	ctx, id := p.begin(p.base, tracking.KindHeading)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		res, err := p.heading.TurnToHeading(ctx, req.Target, req.Tolerance, req.AngularVelocity)
		p.end(id, res, err)
	}()
	return id
}

// StartClass validates the class and starts an acquisition in the
// background. An unknown class fails here and no run is created.
func (p *Pilot) StartClass(req ClassRequest) (string, error) {
	req = p.classDefaults(req)
	if err := p.checkClass(req.Class); err != nil {
		return "", err
	}
	ctx, id := p.begin(p.base, tracking.KindClass)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		res, err := p.acquire.TurnToClass(ctx, req.Class, req.Tolerance, req.AngularVelocity, seconds(req.Timeout))
		p.end(id, res, err)
	}()
	return id, nil
}

// Move drives forward for one pulse.
func (p *Pilot) Move(ctx context.Context, velocity float64) error {
	return p.deps.Commander.Move(ctx, velocity)
}

// Turn spins in place for one pulse. Positive is left.
func (p *Pilot) Turn(ctx context.Context, angularVelocity float64) error {
	return p.deps.Commander.Turn(ctx, angularVelocity)
}

// Stop cancels every active run and publishes a stop.
func (p *Pilot) Stop(ctx context.Context) error {
	p.mu.Lock()
	for _, r := range p.runs {
		if !r.info.Done() {
			r.cancel()
		}
	}
	p.mu.Unlock()
	return p.deps.Commander.Stop(ctx)
}

// Cancel ends one active run. The controller stops the robot on its way out.
func (p *Pilot) Cancel(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[id]
	if !ok {
		return ErrUnknownRun
	}
	r.cancel()
	return nil
}

// Run returns the record for id.
func (p *Pilot) Run(id string) (RunInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[id]
	if !ok {
		return RunInfo{}, ErrUnknownRun
	}
	return r.info, nil
}

// Runs returns the run history, oldest first.
func (p *Pilot) Runs() []RunInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RunInfo, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.runs[id].info)
	}
	return out
}

// Classes returns the class names the acquisition controller accepts.
func (p *Pilot) Classes() []string {
	return p.deps.Classes.Names()
}

// Status reports commander counters, the latest sensor readings and runs.
func (p *Pilot) Status() Status {
	st := Status{Commander: p.deps.Commander.Stats(), Active: []RunInfo{}}
	if p.deps.Yaw != nil {
		if yaw, ok := p.deps.Yaw.Yaw(); ok {
			st.Yaw = &yaw
		}
	}
	if p.deps.Detections != nil {
		st.Detections = p.deps.Detections.Snapshot().Len()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.order {
		if info := p.runs[id].info; !info.Done() {
			st.Active = append(st.Active, info)
		}
	}
	if r, ok := p.runs[p.last]; ok {
		info := r.info
		st.Last = &info
	}
	return st
}

// Close cancels active runs and waits for background runs to stop the
// robot.
func (p *Pilot) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pilot) begin(ctx context.Context, kind tracking.Kind) (context.Context, string) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	ctx = tracking.WithRunID(ctx, id)

	p.mu.Lock()
	p.runs[id] = &run{
		info:   RunInfo{ID: id, Kind: kind, State: tracking.StateIdle, Started: p.deps.Clock.Now()},
		cancel: cancel,
	}
	p.order = append(p.order, id)
	p.trim()
	p.mu.Unlock()

	p.logger.Info("run started", "run_id", id, "kind", kind)
	return ctx, id
}

func (p *Pilot) end(id string, res tracking.Result, err error) {
	p.mu.Lock()
	r, ok := p.runs[id]
	if ok {
		r.cancel()
		r.info.Finished = p.deps.Clock.Now()
		r.info.Result = &res
		if res.State != "" {
			r.info.State = res.State
		}
		if err != nil {
			r.info.Err = err.Error()
			if !r.info.State.Terminal() {
				r.info.State = tracking.StateFailed
			}
		}
	}
	p.last = id
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("run ended", "run_id", id, "state", res.State, "error", err)
		return
	}
	p.logger.Info("run ended", "run_id", id, "state", res.State, "ticks", res.Ticks)
}

// trim drops the oldest finished runs beyond maxRuns. Caller holds mu.
func (p *Pilot) trim() {
	for i := 0; len(p.order) > maxRuns && i < len(p.order); {
		id := p.order[i]
		if p.runs[id].info.Done() {
			delete(p.runs, id)
			p.order = append(p.order[:i], p.order[i+1:]...)
			continue
		}
		i++
	}
}

func (p *Pilot) checkClass(name string) error {
	if _, err := p.deps.Classes.Lookup(name); err != nil {
		return fmt.Errorf("%w: %w", tracking.ErrConfiguration, err)
	}
	return nil
}

func (p *Pilot) headingDefaults(req HeadingRequest) HeadingRequest {
	if req.Tolerance <= 0 {
		req.Tolerance = p.cfg.HeadingTolerance
	}
	if req.AngularVelocity <= 0 {
		req.AngularVelocity = p.cfg.AngularVelocity
	}
	return req
}

func (p *Pilot) classDefaults(req ClassRequest) ClassRequest {
	if req.Tolerance <= 0 {
		req.Tolerance = p.cfg.CenterTolerance
	}
	if req.AngularVelocity <= 0 {
		req.AngularVelocity = p.cfg.AngularVelocity
	}
	if req.Timeout <= 0 {
		req.Timeout = p.cfg.SearchTimeout.Seconds()
	}
	return req
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
