package store

import "github.com/roach88/ruleassert/internal/ir"

// Fact event kinds.
const (
	KindInsert = "insert"
	KindUpdate = "update"
	KindDelete = "delete"
	KindFire   = "fire" // trace entries only
)

// SessionRecord describes one journaled session.
type SessionRecord struct {
	ID           string
	RuleBaseHash string
	IRVersion    string
	ToolVersion  string
	Name         string // scenario or test name, may be empty
}

// FactEventRecord is one working memory change.
type FactEventRecord struct {
	SessionID string
	Seq       int64
	Kind      string // KindInsert, KindUpdate or KindDelete
	Handle    ir.FactHandle
	FactType  string
	Fact      string // rendered fact
	ClockMs   int64
	Rule      string // rule whose consequence made the change, empty for callers
}

// FiringRecord is one rule firing.
type FiringRecord struct {
	SessionID string
	Seq       int64
	Rule      string
	Handles   []ir.FactHandle
	ClockMs   int64
}

// TraceEntry is a fact event or firing, merged in seq order.
type TraceEntry struct {
	Seq      int64
	Kind     string // KindFire or a fact event kind
	Rule     string
	Handles  []ir.FactHandle // firings
	Handle   ir.FactHandle   // fact events
	FactType string
	Fact     string
	ClockMs  int64
}

// RuleCount is a rule's firing count.
type RuleCount struct {
	Rule  string
	Count int64
}
