// Package timeutil provides a testable abstraction over time operations.
//
// Control loops pace themselves with a Ticker obtained from a Clock. In
// production that is RealClock; tests use StepClock, which moves simulated
// time forward by one period every time a tick is consumed, so a loop runs
// deterministically and as fast as the CPU allows.
package timeutil

import (
	"sync"
	"time"
)

// Clock provides an abstraction over time operations for testability.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// After waits for the duration to elapse and then sends the current time.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a new Ticker containing a channel that will
	// send the time with a period specified by the duration argument.
	NewTicker(d time.Duration) Ticker
}

// Ticker holds a channel that delivers "ticks" of a clock at intervals.
type Ticker interface {
	// C returns the channel on which the ticks are delivered.
	// Callers must re-evaluate C() for every receive.
	C() <-chan time.Time

	// Stop turns off a ticker.
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// After waits for the duration to elapse and then sends the current time.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewTicker returns a new Ticker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time { return t.ticker.C }
func (t *realTicker) Stop()               { t.ticker.Stop() }

// StepClock is a simulated clock. Receiving from one of its tickers (or from
// After) advances the clock by the tick period before the value is delivered.
type StepClock struct {
	mu    sync.Mutex
	now   time.Time
	ticks int
	onAdv []func(time.Time)
}

// NewStepClock creates a StepClock set to start.
func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

// Now returns the simulated current time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the simulated duration since t.
func (c *StepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d and runs any OnAdvance hooks.
func (c *StepClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	hooks := c.onAdv
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(now)
	}
	return now
}

// OnAdvance registers fn to run after every advance. Tests use it to
// simulate sensor updates between ticks.
func (c *StepClock) OnAdvance(fn func(now time.Time)) {
	c.mu.Lock()
	c.onAdv = append(c.onAdv, fn)
	c.mu.Unlock()
}

// Ticks returns how many ticker periods have been consumed.
func (c *StepClock) Ticks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// After advances the clock by d and returns a channel that is already ready.
func (c *StepClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return ch
}

// NewTicker returns a ticker that advances the clock by d per receive.
func (c *StepClock) NewTicker(d time.Duration) Ticker {
	return &stepTicker{clock: c, period: d}
}

type stepTicker struct {
	clock   *StepClock
	period  time.Duration
	mu      sync.Mutex
	stopped bool
}

// C advances the owning clock by one period and hands back a ready channel.
// A stopped ticker returns a channel that never fires.
func (t *stepTicker) C() <-chan time.Time {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return nil
	}

	t.clock.mu.Lock()
	t.clock.ticks++
	t.clock.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- t.clock.Advance(t.period)
	return ch
}

func (t *stepTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
