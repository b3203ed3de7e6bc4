package engine

import (
	"sync/atomic"
	"time"
)

// PseudoClock is the session's virtual clock in milliseconds.
//
// It starts at 0 and only moves when advanced. Negative advances are
// allowed so callers can jump far ahead and rewind afterwards.
type PseudoClock struct {
	millis atomic.Int64
}

// NewPseudoClock creates a clock at 0.
func NewPseudoClock() *PseudoClock {
	return &PseudoClock{}
}

// Advance moves the clock by amount units and returns the new time.
// Units below a millisecond are truncated to whole milliseconds.
func (c *PseudoClock) Advance(amount int64, unit time.Duration) int64 {
	return c.millis.Add(toMillis(amount, unit))
}

// Now returns the current time in milliseconds.
func (c *PseudoClock) Now() int64 {
	return c.millis.Load()
}

func toMillis(amount int64, unit time.Duration) int64 {
	if unit >= time.Millisecond {
		return amount * int64(unit/time.Millisecond)
	}
	return amount * int64(unit) / int64(time.Millisecond)
}
