package testutil

import (
	"sync"
	"time"
)

// StepClock is a fake wall clock for engine.WithNow.
//
// Every call to Now returns the previous time plus a fixed step, so an
// activation created on one call and completed on the next reports an
// elapsed time of exactly one step.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
	step  time.Duration
}

// NewStepClock creates a clock at start that moves by step per call.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{start: start, now: start, step: step}
}

// Now advances the clock by one step and returns the new time.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

// Current returns the time without advancing.
func (c *StepClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset moves the clock back to its start.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
