package robot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-pupper/internal/log"
	"github.com/teslashibe/go-pupper/internal/timeutil"
)

// Defaults for the commander.
const (
	DefaultPulseDuration = 1 * time.Second
	DefaultStopTimeout   = 2 * time.Second
)

// Stats is a snapshot of commander activity.
type Stats struct {
	Published uint64          `json:"published"`
	Stops     uint64          `json:"stops"`
	Errors    uint64          `json:"errors"`
	Last      VelocityCommand `json:"last"`
	Owner     string          `json:"owner,omitempty"`
}

// Commander is the single output port for velocity commands.
//
// Only the holder of the Lease may publish motion. Stop needs no lease and
// may be called at any time, including teardown.
type Commander struct {
	sink   Sink
	clock  timeutil.Clock
	logger *slog.Logger

	pulse       time.Duration
	stopTimeout time.Duration

	token   chan struct{}
	waiting atomic.Int32

	mu        sync.Mutex // serializes sink writes
	last      VelocityCommand
	published uint64
	stops     uint64
	errors    uint64
	owner     string
}

// Option configures a Commander.
type Option func(*Commander)

// WithClock sets the clock used for one-shot pulses.
func WithClock(c timeutil.Clock) Option {
	return func(cm *Commander) { cm.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cm *Commander) { cm.logger = l }
}

// WithPulseDuration sets how long Move and Turn drive before stopping.
func WithPulseDuration(d time.Duration) Option {
	return func(cm *Commander) { cm.pulse = d }
}

// NewCommander creates a commander publishing to sink.
func NewCommander(sink Sink, opts ...Option) *Commander {
	c := &Commander{
		sink:        sink,
		clock:       timeutil.RealClock{},
		pulse:       DefaultPulseDuration,
		stopTimeout: DefaultStopTimeout,
		token:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Component("commander")
	}
	return c
}

// Acquire blocks until the caller owns the output port or ctx is done.
// owner is a label for logs and Stats (usually a run id).
func (c *Commander) Acquire(ctx context.Context, owner string) (*Lease, error) {
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	select {
	case c.token <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()

	c.logger.Debug("lease acquired", "owner", owner)
	return &Lease{c: c, owner: owner}, nil
}

// Stop publishes the all-zero command. It ignores cancellation of ctx so a
// stop still goes out during shutdown.
func (c *Commander) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.stopTimeout)
	defer cancel()

	c.logger.Debug("stopping")
	err := c.send(ctx, Zero())

	c.mu.Lock()
	c.stops++
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Move drives forward at velocity for the pulse duration, then stops.
func (c *Commander) Move(ctx context.Context, velocity float64) error {
	c.logger.Info("move forward", "velocity", velocity)
	return c.pulseCommand(ctx, "move", Forward(velocity))
}

// Turn spins in place at angularVelocity (positive is left) for the pulse
// duration, then stops.
func (c *Commander) Turn(ctx context.Context, angularVelocity float64) error {
	c.logger.Info("turn", "angular_velocity", angularVelocity)
	return c.pulseCommand(ctx, "turn", Rotate(angularVelocity))
}

func (c *Commander) pulseCommand(ctx context.Context, owner string, cmd VelocityCommand) error {
	lease, err := c.Acquire(ctx, owner)
	if err != nil {
		return err
	}
	defer lease.Release()

	if err := lease.Publish(ctx, cmd); err != nil {
		return errors.Join(err, lease.Stop(ctx))
	}

	var waitErr error
	select {
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-c.clock.After(c.pulse):
	}
	return errors.Join(waitErr, lease.Stop(ctx))
}

// Stats returns a snapshot of activity counters.
func (c *Commander) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Published: c.published,
		Stops:     c.stops,
		Errors:    c.errors,
		Last:      c.last,
		Owner:     c.owner,
	}
}

func (c *Commander) send(ctx context.Context, cmd VelocityCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sink.Publish(ctx, cmd); err != nil {
		c.errors++
		return fmt.Errorf("robot: publish: %w", err)
	}
	c.last = cmd
	c.published++
	return nil
}

// Waiting returns the number of callers blocked in Acquire.
func (c *Commander) Waiting() int {
	return int(c.waiting.Load())
}

func (c *Commander) release(owner string) {
	c.mu.Lock()
	if c.owner == owner {
		c.owner = ""
	}
	c.mu.Unlock()

	<-c.token
	c.logger.Debug("lease released", "owner", owner)
}

// Lease is exclusive ownership of a Commander's motion output.
type Lease struct {
	c        *Commander
	owner    string
	released atomic.Bool
}

// Owner returns the label the lease was acquired with.
func (l *Lease) Owner() string {
	return l.owner
}

// Publish sends cmd exactly as given.
func (l *Lease) Publish(ctx context.Context, cmd VelocityCommand) error {
	if l.released.Load() {
		return ErrLeaseReleased
	}
	return l.c.send(ctx, cmd)
}

// Stop publishes the all-zero command. Allowed after Release.
func (l *Lease) Stop(ctx context.Context) error {
	return l.c.Stop(ctx)
}

// Release gives up ownership. Safe to call more than once.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.c.release(l.owner)
	}
}
