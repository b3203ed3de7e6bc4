package harness

import (
	"errors"
	"time"

	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/ir"
)

// ErrNoSession is returned by session operations of a harness that was
// created without a session.
var ErrNoSession = errors.New("harness has no session")

// Session is the rule engine session a Harness drives.
type Session interface {
	ID() string
	Insert(fact any) (ir.FactHandle, error)
	FireAllRules() (int, error)
	Facts() []ir.FactEntry
	FactCount() int64
	SetGlobal(name string, value any) error
	AddListener(l any)
	RemoveListener(l any)
	AdvanceTime(amount int64, unit time.Duration)
	CurrentTime() int64
	Dispose()
}

var _ Session = (*engine.Session)(nil)

// SessionFactory creates sessions with the given properties.
type SessionFactory func(props map[string]string) (Session, error)

// NewSessionFactory adapts a rule base to a SessionFactory.
func NewSessionFactory(rb *engine.RuleBase) SessionFactory {
	return func(props map[string]string) (Session, error) {
		s, err := rb.NewSession(props)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
