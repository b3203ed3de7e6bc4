package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleassert/internal/ir"
)

func TestWriteSession_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	createTestSession(t, s, "s-1")
	require.NoError(t, s.WriteSession(ctx, SessionRecord{ID: "s-1", RuleBaseHash: "other"}))

	sessions, err := s.ReadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "test-hash", sessions[0].RuleBaseHash, "first write wins")
}

func TestReadSession_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadSession(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReadSessions_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	sessions, err := s.ReadSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestWriteFactEvent_RequiresSession(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteFactEvent(context.Background(), insertEvent("ghost", 1, 1, "Dialing{}"))
	assert.Error(t, err, "foreign key enforced")
}

func TestWriteFactEvent_InvalidKind(t *testing.T) {
	s := createTestStore(t)
	createTestSession(t, s, "s-1")

	ev := insertEvent("s-1", 1, 1, "x")
	ev.Kind = "upsert"
	err := s.WriteFactEvent(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid kind")
}

func TestWrite_DuplicateSeqRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	require.NoError(t, s.WriteFactEvent(ctx, insertEvent("s-1", 1, 1, "a")))
	assert.Error(t, s.WriteFactEvent(ctx, insertEvent("s-1", 1, 2, "b")))
}

func TestReadTrace_MergesBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")
	createTestSession(t, s, "s-2")

	require.NoError(t, s.WriteFactEvent(ctx, insertEvent("s-1", 1, 1, `Dialing{callerNumber="1"}`)))
	require.NoError(t, s.WriteFiring(ctx, FiringRecord{SessionID: "s-1", Seq: 2, Rule: "input call", Handles: []ir.FactHandle{1}}))
	require.NoError(t, s.WriteFactEvent(ctx, FactEventRecord{
		SessionID: "s-1", Seq: 3, Kind: KindDelete, Handle: 1, FactType: "Dialing", Fact: "gone", ClockMs: 0, Rule: "input call",
	}))
	require.NoError(t, s.WriteFactEvent(ctx, insertEvent("s-2", 1, 1, "other session")))

	trace, err := s.ReadTrace(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, trace, 3)

	assert.Equal(t, KindInsert, trace[0].Kind)
	assert.Equal(t, ir.FactHandle(1), trace[0].Handle)
	assert.Equal(t, KindFire, trace[1].Kind)
	assert.Equal(t, "input call", trace[1].Rule)
	assert.Equal(t, []ir.FactHandle{1}, trace[1].Handles)
	assert.Equal(t, KindDelete, trace[2].Kind)
	assert.Equal(t, "input call", trace[2].Rule)
}

func TestMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	seq, err := s.MaxSeq(ctx, "s-1")
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.WriteFactEvent(ctx, insertEvent("s-1", 4, 1, "a")))
	require.NoError(t, s.WriteFiring(ctx, FiringRecord{SessionID: "s-1", Seq: 7, Rule: "r"}))

	seq, err = s.MaxSeq(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestFiringCounts_OrderedByFirstFiring(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	for i, rule := range []string{"b", "a", "b", "b", "a", "c"} {
		require.NoError(t, s.WriteFiring(ctx, FiringRecord{SessionID: "s-1", Seq: int64(i + 1), Rule: rule}))
	}

	counts, err := s.FiringCounts(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []RuleCount{{"b", 3}, {"a", 2}, {"c", 1}}, counts)

	firings, err := s.ReadFirings(ctx, "s-1")
	require.NoError(t, err)
	assert.Len(t, firings, 6)
	assert.Equal(t, []ir.FactHandle{}, firings[0].Handles)
}

func TestReadFactEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestSession(t, s, "s-1")

	ev := FactEventRecord{
		SessionID: "s-1", Seq: 1, Kind: KindUpdate, Handle: 3,
		FactType: "AtomicInteger", Fact: "AtomicInteger{value=1}", ClockMs: 1500, Rule: "atomic int rule",
	}
	require.NoError(t, s.WriteFactEvent(ctx, ev))

	events, err := s.ReadFactEvents(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, []FactEventRecord{ev}, events)
}

func TestHandlesRoundTrip(t *testing.T) {
	text, err := marshalHandles([]ir.FactHandle{3, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, "[3,1,2]", text)

	handles, err := unmarshalHandles(text)
	require.NoError(t, err)
	assert.Equal(t, []ir.FactHandle{3, 1, 2}, handles)

	_, err = unmarshalHandles("{")
	assert.Error(t, err)
}
