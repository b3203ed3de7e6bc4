package ir

import "time"

// MatchEvent describes one rule firing.
type MatchEvent struct {
	Rule    string
	Tuple   []any        // matched facts, in pattern order
	Handles []FactHandle // handles of Tuple
	Clock   int64        // pseudo clock millis at firing

	// Elapsed is set on AfterMatchFired only: wall time from activation
	// creation to the end of the consequence.
	Elapsed time.Duration
}

// FactEvent describes a working memory change.
type FactEvent struct {
	Handle FactHandle
	Fact   any    // current value; nil on delete
	Old    any    // prior value on update and delete
	Rule   string // rule whose consequence made the change, empty for callers
	Clock  int64
}

// Session event subscriptions. A listener implements any subset; the
// session keeps one subscriber list per capability and invokes subscribers
// in registration order.
type (
	MatchListener interface {
		BeforeMatchFired(MatchEvent)
	}
	MatchTimingListener interface {
		AfterMatchFired(MatchEvent)
	}
	FactInsertListener interface {
		FactInserted(FactEvent)
	}
	FactUpdateListener interface {
		FactUpdated(FactEvent)
	}
	FactDeleteListener interface {
		FactDeleted(FactEvent)
	}
)
