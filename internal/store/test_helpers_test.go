package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/ruleassert/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession records a session with minimal required fields.
func createTestSession(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.WriteSession(context.Background(), SessionRecord{
		ID:           id,
		RuleBaseHash: "test-hash",
		IRVersion:    ir.IRVersion,
		ToolVersion:  ir.ToolVersion,
	})
	if err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
}

func insertEvent(sessionID string, seq int64, handle ir.FactHandle, fact string) FactEventRecord {
	return FactEventRecord{
		SessionID: sessionID,
		Seq:       seq,
		Kind:      KindInsert,
		Handle:    handle,
		FactType:  "Dialing",
		Fact:      fact,
	}
}
