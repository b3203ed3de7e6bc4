package harness

import (
	"fmt"
	"math"
	"time"
)

// clockController drives a session's pseudo clock in ticks and fires after
// every tick, so scheduled consequences can feed later ticks.
type clockController struct {
	session Session
}

// advance converts amount of unit to whole seconds, truncating, and ticks
// once per second.
func (c *clockController) advance(amount int64, unit time.Duration) error {
	return c.advanceTicks(time.Second, toSeconds(amount, unit))
}

func (c *clockController) advanceTicks(unit time.Duration, ticks int64) error {
	for i := int64(0); i < ticks; i++ {
		if err := c.tick(unit); err != nil {
			return err
		}
	}
	return nil
}

func (c *clockController) tick(unit time.Duration) error {
	c.session.AdvanceTime(1, unit)
	_, err := c.session.FireAllRules()
	return err
}

// triggerAllScheduled jumps to the end of time, fires, and jumps back by the
// same amount.
func (c *clockController) triggerAllScheduled() error {
	jump := int64(math.MaxInt64)
	if now := c.session.CurrentTime(); now > 0 {
		jump -= now
	}
	c.session.AdvanceTime(jump, time.Millisecond)
	defer c.session.AdvanceTime(-jump, time.Millisecond)
	_, err := c.session.FireAllRules()
	return err
}

func toSeconds(amount int64, unit time.Duration) int64 {
	switch {
	case unit >= time.Second && unit%time.Second == 0:
		return amount * int64(unit/time.Second)
	case unit > 0 && time.Second%unit == 0:
		return amount / int64(time.Second/unit)
	default:
		// amount*unit can overflow int64 nanoseconds; split the unit into
		// whole seconds and a remainder, and the amount around 1s.
		whole, rem := int64(unit/time.Second), int64(unit%time.Second)
		sec := int64(time.Second)
		return amount*whole + (amount/sec)*rem + (amount%sec)*rem/sec
	}
}

// formatClock renders pseudo clock millis as a time of day.
func formatClock(ms int64) string {
	if ms == math.MaxInt64 {
		return "23:59:59"
	}
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	day := ms % (24 * 3600 * 1000)
	h := day / 3600000
	m := day / 60000 % 60
	s := day / 1000 % 60
	if frac := day % 1000; frac != 0 {
		return fmt.Sprintf("%s%02d:%02d:%02d.%03d", sign, h, m, s, frac)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, h, m, s)
}
