package engine

import (
	"errors"
	"fmt"
)

// ErrUnsupportedClock is returned for sessions that request a realtime clock.
var ErrUnsupportedClock = errors.New("only the pseudo clock is supported")

// RuntimeError represents an error detected while a session runs.
//
// Runtime errors include:
//   - Quota exceeded: FireAllRules exceeded the max firings limit
//   - Disposed: the session was used after Dispose
//   - Invalid fact: a fact cannot be tracked in working memory
//   - Consequence failed: an action of a firing rule could not apply
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session.
	SessionID string

	// Rule identifies the firing rule, when there is one.
	Rule string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeQuotaExceeded     RuntimeErrorCode = "QUOTA_EXCEEDED"
	ErrCodeDisposed          RuntimeErrorCode = "SESSION_DISPOSED"
	ErrCodeInvalidFact       RuntimeErrorCode = "INVALID_FACT"
	ErrCodeConsequenceFailed RuntimeErrorCode = "CONSEQUENCE_FAILED"
	ErrCodeInvalidProperty   RuntimeErrorCode = "INVALID_PROPERTY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.SessionID != "" && e.Rule != "" {
		msg = fmt.Sprintf("%s (session=%s, rule=%s)", msg, e.SessionID, e.Rule)
	} else if e.SessionID != "" {
		msg = fmt.Sprintf("%s (session=%s)", msg, e.SessionID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes Cause to errors.Is and errors.As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and FiringsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var fe *FiringsExceededError
	return errors.As(err, &fe)
}

// IsDisposedError returns true if the session was used after Dispose.
func IsDisposedError(err error) bool {
	return hasCode(err, ErrCodeDisposed)
}

// IsInvalidFactError returns true if a fact was rejected by working memory.
func IsInvalidFactError(err error) bool {
	return hasCode(err, ErrCodeInvalidFact)
}

// IsConsequenceError returns true if a rule consequence failed.
func IsConsequenceError(err error) bool {
	return hasCode(err, ErrCodeConsequenceFailed)
}

func newDisposedError(sessionID string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeDisposed,
		Message:   "session has been disposed",
		SessionID: sessionID,
	}
}

func newConsequenceError(sessionID, rule, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeConsequenceFailed,
		Message:   fmt.Sprintf(format, args...),
		SessionID: sessionID,
		Rule:      rule,
	}
}
