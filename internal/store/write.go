package store

import (
	"context"
	"fmt"
)

// WriteSession records a session. Re-recording an existing id is a no-op,
// so a journal can be appended to by a session id that was seen before.
func (s *Store) WriteSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, rulebase_hash, ir_version, tool_version, name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.RuleBaseHash,
		rec.IRVersion,
		rec.ToolVersion,
		rec.Name,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteFactEvent appends a fact event.
// The session must exist (foreign key constraint) and seq must be unused
// within it.
func (s *Store) WriteFactEvent(ctx context.Context, ev FactEventRecord) error {
	switch ev.Kind {
	case KindInsert, KindUpdate, KindDelete:
	default:
		return fmt.Errorf("write fact event: invalid kind %q", ev.Kind)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fact_events
		(session_id, seq, kind, handle, fact_type, fact, clock_ms, rule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.SessionID,
		ev.Seq,
		ev.Kind,
		int64(ev.Handle),
		ev.FactType,
		ev.Fact,
		ev.ClockMs,
		ev.Rule,
	)
	if err != nil {
		return fmt.Errorf("write fact event: %w", err)
	}
	return nil
}

// WriteFiring appends a rule firing.
func (s *Store) WriteFiring(ctx context.Context, f FiringRecord) error {
	handlesJSON, err := marshalHandles(f.Handles)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO firings (session_id, seq, rule, handles, clock_ms)
		VALUES (?, ?, ?, ?, ?)
	`,
		f.SessionID,
		f.Seq,
		f.Rule,
		handlesJSON,
		f.ClockMs,
	)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}
	return nil
}
