package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ruleassert/internal/ir"
)

// ReadSessions returns all journaled sessions in the order they were recorded.
// Returns an empty slice (not nil) for an empty journal.
func (s *Store) ReadSessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rulebase_hash, ir_version, tool_version, name
		FROM sessions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionRecord{}
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.RuleBaseHash, &rec.IRVersion, &rec.ToolVersion, &rec.Name); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession retrieves one session by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, rulebase_hash, ir_version, tool_version, name
		FROM sessions
		WHERE id = ?
	`, id).Scan(&rec.ID, &rec.RuleBaseHash, &rec.IRVersion, &rec.ToolVersion, &rec.Name)
	if err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// MaxSeq returns the highest seq used by a session, 0 when it has none.
// Writers resume numbering from here.
func (s *Store) MaxSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM fact_events WHERE session_id = ?
			UNION ALL
			SELECT seq FROM firings WHERE session_id = ?
		)
	`, sessionID, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return seq.Int64, nil
}

// ReadFirings returns a session's firings ordered by seq.
func (s *Store) ReadFirings(ctx context.Context, sessionID string) ([]FiringRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, rule, handles, clock_ms
		FROM firings
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []FiringRecord{}
	for rows.Next() {
		var (
			f           FiringRecord
			handlesJSON string
		)
		if err := rows.Scan(&f.SessionID, &f.Seq, &f.Rule, &handlesJSON, &f.ClockMs); err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		if f.Handles, err = unmarshalHandles(handlesJSON); err != nil {
			return nil, err
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

// ReadFactEvents returns a session's fact events ordered by seq.
func (s *Store) ReadFactEvents(ctx context.Context, sessionID string) ([]FactEventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, handle, fact_type, fact, clock_ms, rule
		FROM fact_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query fact events: %w", err)
	}
	defer rows.Close()

	events := []FactEventRecord{}
	for rows.Next() {
		var (
			ev     FactEventRecord
			handle int64
		)
		if err := rows.Scan(&ev.SessionID, &ev.Seq, &ev.Kind, &handle, &ev.FactType, &ev.Fact, &ev.ClockMs, &ev.Rule); err != nil {
			return nil, fmt.Errorf("scan fact event: %w", err)
		}
		ev.Handle = ir.FactHandle(handle)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact events: %w", err)
	}
	return events, nil
}

// ReadTrace merges a session's fact events and firings in seq order.
func (s *Store) ReadTrace(ctx context.Context, sessionID string) ([]TraceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, rule, '' AS handles, handle, fact_type, fact, clock_ms
		FROM fact_events WHERE session_id = ?
		UNION ALL
		SELECT seq, 'fire', rule, handles, 0, '', '', clock_ms
		FROM firings WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}
	defer rows.Close()

	trace := []TraceEntry{}
	for rows.Next() {
		var (
			e           TraceEntry
			handlesJSON string
			handle      int64
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Rule, &handlesJSON, &handle, &e.FactType, &e.Fact, &e.ClockMs); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		e.Handle = ir.FactHandle(handle)
		if e.Kind == KindFire {
			if e.Handles, err = unmarshalHandles(handlesJSON); err != nil {
				return nil, err
			}
		}
		trace = append(trace, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace: %w", err)
	}
	return trace, nil
}

// FiringCounts returns how often each rule fired in a session, ordered by
// each rule's first firing.
func (s *Store) FiringCounts(ctx context.Context, sessionID string) ([]RuleCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule, COUNT(*)
		FROM firings
		WHERE session_id = ?
		GROUP BY rule
		ORDER BY MIN(seq) ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query firing counts: %w", err)
	}
	defer rows.Close()

	counts := []RuleCount{}
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.Rule, &rc.Count); err != nil {
			return nil, fmt.Errorf("scan firing count: %w", err)
		}
		counts = append(counts, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firing counts: %w", err)
	}
	return counts, nil
}
