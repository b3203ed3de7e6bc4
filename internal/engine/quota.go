package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxFirings bounds a single FireAllRules call.
const DefaultMaxFirings = 10000

// FiringQuota counts rule firings within one FireAllRules call and
// enforces the max firings limit.
//
// Refraction stops a tuple from firing twice at the same versions, but a
// rule that keeps changing its own facts produces fresh versions forever.
// The quota turns that into an error instead of a hang.
type FiringQuota struct {
	maxFirings int
	current    int
}

// NewFiringQuota creates a quota with the given limit.
func NewFiringQuota(maxFirings int) *FiringQuota {
	return &FiringQuota{maxFirings: maxFirings}
}

// Check increments the firing counter and validates against the limit.
func (q *FiringQuota) Check(sessionID, rule string) error {
	q.current++
	if q.current > q.maxFirings {
		return &FiringsExceededError{
			SessionID: sessionID,
			Rule:      rule,
			Firings:   q.current,
			Limit:     q.maxFirings,
		}
	}
	return nil
}

// Reset resets the firing counter to 0.
func (q *FiringQuota) Reset() {
	q.current = 0
}

// Current returns the current firing count.
func (q *FiringQuota) Current() int {
	return q.current
}

// MaxFirings returns the limit.
func (q *FiringQuota) MaxFirings() int {
	return q.maxFirings
}

// FiringsExceededError is returned when FireAllRules exceeds the quota.
// Rule names the activation that would have gone over the limit.
type FiringsExceededError struct {
	SessionID string
	Rule      string
	Firings   int
	Limit     int
}

// Error implements the error interface.
func (e *FiringsExceededError) Error() string {
	return fmt.Sprintf("session %s exceeded max firings quota: %d firings > %d limit (last rule %q)",
		e.SessionID, e.Firings, e.Limit, e.Rule)
}

// IsFiringsExceededError returns true if the error is a FiringsExceededError.
func IsFiringsExceededError(err error) bool {
	var fe *FiringsExceededError
	return errors.As(err, &fe)
}
