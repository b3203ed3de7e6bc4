package harness

import (
	"context"
	"fmt"

	"github.com/roach88/ruleassert/internal/ir"
	"github.com/roach88/ruleassert/internal/store"
)

// Journal records a session's firings and fact events into a store.
//
// Journal implements ir.MatchListener and the fact listener interfaces.
// Listener callbacks cannot fail, so the first write error is kept and
// every later event is dropped; Err reports it.
type Journal struct {
	ctx       context.Context
	store     *store.Store
	sessionID string
	seq       int64
	err       error
}

// NewJournal records the session and continues its seq numbering when the
// session id is already in the store.
func NewJournal(ctx context.Context, st *store.Store, rec store.SessionRecord) (*Journal, error) {
	if err := st.WriteSession(ctx, rec); err != nil {
		return nil, err
	}
	seq, err := st.MaxSeq(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return &Journal{ctx: ctx, store: st, sessionID: rec.ID, seq: seq}, nil
}

// SessionID returns the journaled session id.
func (j *Journal) SessionID() string {
	return j.sessionID
}

// Err returns the first write error.
func (j *Journal) Err() error {
	return j.err
}

func (j *Journal) next() int64 {
	j.seq++
	return j.seq
}

// BeforeMatchFired implements ir.MatchListener.
func (j *Journal) BeforeMatchFired(ev ir.MatchEvent) {
	if j.err != nil {
		return
	}
	err := j.store.WriteFiring(j.ctx, store.FiringRecord{
		SessionID: j.sessionID,
		Seq:       j.next(),
		Rule:      ev.Rule,
		Handles:   ev.Handles,
		ClockMs:   ev.Clock,
	})
	if err != nil {
		j.err = fmt.Errorf("journal firing of %q: %w", ev.Rule, err)
	}
}

// FactInserted implements ir.FactInsertListener.
func (j *Journal) FactInserted(ev ir.FactEvent) {
	j.writeFact(store.KindInsert, ev, ev.Fact)
}

// FactUpdated implements ir.FactUpdateListener.
func (j *Journal) FactUpdated(ev ir.FactEvent) {
	j.writeFact(store.KindUpdate, ev, ev.Fact)
}

// FactDeleted implements ir.FactDeleteListener.
func (j *Journal) FactDeleted(ev ir.FactEvent) {
	j.writeFact(store.KindDelete, ev, ev.Old)
}

func (j *Journal) writeFact(kind string, ev ir.FactEvent, fact any) {
	if j.err != nil {
		return
	}
	err := j.store.WriteFactEvent(j.ctx, store.FactEventRecord{
		SessionID: j.sessionID,
		Seq:       j.next(),
		Kind:      kind,
		Handle:    ev.Handle,
		FactType:  ir.TypeOf(fact),
		Fact:      ir.Render(fact),
		ClockMs:   ev.Clock,
		Rule:      ev.Rule,
	})
	if err != nil {
		j.err = fmt.Errorf("journal %s of handle %d: %w", kind, ev.Handle, err)
	}
}
