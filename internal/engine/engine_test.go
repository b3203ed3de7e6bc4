package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleassert/internal/ir"
)

// recorder subscribes to every event capability.
type recorder struct {
	fired    []string
	timings  []ir.MatchEvent
	inserted []ir.FactEvent
	updated  []ir.FactEvent
	deleted  []ir.FactEvent
}

func (r *recorder) BeforeMatchFired(ev ir.MatchEvent) { r.fired = append(r.fired, ev.Rule) }
func (r *recorder) AfterMatchFired(ev ir.MatchEvent)  { r.timings = append(r.timings, ev) }
func (r *recorder) FactInserted(ev ir.FactEvent)      { r.inserted = append(r.inserted, ev) }
func (r *recorder) FactUpdated(ev ir.FactEvent)       { r.updated = append(r.updated, ev) }
func (r *recorder) FactDeleted(ev ir.FactEvent)       { r.deleted = append(r.deleted, ev) }

// callRules mirrors testdata/rules/calls.cue.
func callRules() []ir.Rule {
	return []ir.Rule{
		{
			Name: "input call",
			When: []ir.Pattern{
				{Bind: "d", Type: "Dialing"},
				{Type: "CallInProgress", Not: true, Where: []ir.Constraint{
					{Field: "calleeNumber", Op: ir.OpEq, Value: ir.Ref("$d.calleeNumber")},
				}},
			},
			Then: []ir.Action{
				{Kind: ir.ActionInsert, Type: "CallInProgress", Fields: map[string]ir.Operand{
					"callerNumber": ir.Ref("$d.callerNumber"),
					"calleeNumber": ir.Ref("$d.calleeNumber"),
				}},
				{Kind: ir.ActionRetract, Target: "d"},
			},
		},
		{
			Name:  "drop dial-up if callee is talking",
			Delay: 10 * time.Second,
			When: []ir.Pattern{
				{Bind: "d", Type: "Dialing"},
				{Bind: "c", Type: "CallInProgress", Where: []ir.Constraint{
					{Field: "calleeNumber", Op: ir.OpEq, Value: ir.Ref("$d.calleeNumber")},
				}},
			},
			Then: []ir.Action{
				{Kind: ir.ActionInsert, Type: "CallDropped", Fields: map[string]ir.Operand{
					"number": ir.Ref("$d.callerNumber"),
					"reason": ir.Lit(ir.IRString("callee is busy")),
				}},
				{Kind: ir.ActionRetract, Target: "d"},
			},
		},
		{
			Name:  "drop the call if caller is talking more than permitted time",
			Delay: time.Hour,
			When:  []ir.Pattern{{Bind: "c", Type: "CallInProgress"}},
			Then: []ir.Action{
				{Kind: ir.ActionInsert, Type: "CallDropped", Fields: map[string]ir.Operand{
					"number": ir.Ref("$c.callerNumber"),
					"reason": ir.Lit(ir.IRString("call timeout")),
				}},
				{Kind: ir.ActionRetract, Target: "c"},
			},
		},
		{
			Name: "call in progress dropped",
			When: []ir.Pattern{{Bind: "cd", Type: "CallDropped", Where: []ir.Constraint{
				{Field: "reason", Op: ir.OpEq, Value: ir.Lit(ir.IRString("call timeout"))},
			}}},
			Then: []ir.Action{{Kind: ir.ActionRetract, Target: "cd"}},
		},
		{
			Name: "input call dropped",
			When: []ir.Pattern{{Bind: "cd", Type: "CallDropped", Where: []ir.Constraint{
				{Field: "reason", Op: ir.OpEq, Value: ir.Lit(ir.IRString("callee is busy"))},
			}}},
			Then: []ir.Action{{Kind: ir.ActionRetract, Target: "cd"}},
		},
	}
}

func counterRule(name, typ string) ir.Rule {
	return ir.Rule{
		Name: name,
		When: []ir.Pattern{{Bind: "i", Type: typ, Where: []ir.Constraint{
			{Field: "value", Op: ir.OpEq, Value: ir.Lit(ir.IRInt(0))},
		}}},
		Then: []ir.Action{{Kind: ir.ActionIncrement, Target: "i", Field: "value", By: 1}},
	}
}

func dialing(caller, callee string) *ir.Fact {
	return ir.NewFact("Dialing",
		ir.O("callerNumber", ir.IRString(caller)),
		ir.O("calleeNumber", ir.IRString(callee)),
	)
}

func newTestSession(t *testing.T, rules []ir.Rule, opts ...Option) (*Session, *recorder) {
	t.Helper()
	opts = append([]Option{WithIDGenerator(NewFixedGenerator("session-1"))}, opts...)
	rb, err := NewRuleBase(rules, opts...)
	require.NoError(t, err)
	s, err := rb.NewSession(nil)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)

	rec := &recorder{}
	s.AddListener(rec)
	return s, rec
}

func insertAll(t *testing.T, s *Session, facts ...any) {
	t.Helper()
	for _, f := range facts {
		_, err := s.Insert(f)
		require.NoError(t, err)
	}
}

func fire(t *testing.T, s *Session) int {
	t.Helper()
	n, err := s.FireAllRules()
	require.NoError(t, err)
	return n
}
