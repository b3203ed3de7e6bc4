package engine

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleassert/internal/ir"
)

func TestSession_InsertAssignsIncreasingHandles(t *testing.T) {
	s, rec := newTestSession(t, callRules())

	a := ir.NewFact("Other")
	b := ir.NewFact("Other")
	ha, err := s.Insert(a)
	require.NoError(t, err)
	hb, err := s.Insert(b)
	require.NoError(t, err)

	assert.Equal(t, ir.FactHandle(1), ha)
	assert.Equal(t, ir.FactHandle(2), hb, "structurally equal facts get distinct handles")
	assert.Equal(t, int64(2), s.FactCount())
	require.Len(t, rec.inserted, 2)
	assert.Empty(t, rec.inserted[0].Rule)
}

func TestSession_InsertSameFactTwiceReturnsExistingHandle(t *testing.T) {
	s, rec := newTestSession(t, callRules())
	f := ir.NewFact("Other")

	h1, err := s.Insert(f)
	require.NoError(t, err)
	h2, err := s.Insert(f)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, rec.inserted, 1)
	assert.Equal(t, int64(1), s.FactCount())
}

func TestSession_InsertRejectsInvalidFacts(t *testing.T) {
	s, _ := newTestSession(t, callRules())

	tests := []struct {
		name string
		fact any
	}{
		{"nil", nil},
		{"map", map[string]int{"a": 1}},
		{"slice", []string{"a"}},
		{"untyped fact", &ir.Fact{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Insert(tt.fact)
			require.Error(t, err)
			assert.True(t, IsInvalidFactError(err))
		})
	}
}

func TestSession_InputCall(t *testing.T) {
	s, rec := newTestSession(t, callRules())

	insertAll(t, s, dialing("11111", "22222"))
	assert.Equal(t, 1, fire(t, s))
	assert.Equal(t, []string{"input call"}, rec.fired)

	facts := s.Facts()
	require.Len(t, facts, 1)
	call := facts[0].Fact.(*ir.Fact)
	assert.Equal(t, "CallInProgress", call.Type)
	assert.Equal(t, ir.IRString("11111"), call.Fields["callerNumber"])
	assert.Equal(t, "input call", rec.inserted[1].Rule)
	require.Len(t, rec.deleted, 1)
	assert.Equal(t, "Dialing", ir.TypeOf(rec.deleted[0].Old))
}

func TestSession_TimedActivationsFollowPseudoClock(t *testing.T) {
	s, rec := newTestSession(t, callRules())

	insertAll(t, s, dialing("11111", "22222"))
	fire(t, s)

	s.AdvanceTime(300, time.Second)
	insertAll(t, s, dialing("33333", "22222"))
	assert.Equal(t, 0, fire(t, s), "busy callee holds the dial-up for ten seconds")

	s.AdvanceTime(9, time.Second)
	assert.Equal(t, 0, fire(t, s))

	s.AdvanceTime(1, time.Second)
	assert.Equal(t, 2, fire(t, s))
	assert.Equal(t, []string{
		"input call",
		"drop dial-up if callee is talking",
		"input call dropped",
	}, rec.fired)

	s.AdvanceTime(3600-310, time.Second)
	assert.Equal(t, 2, fire(t, s))
	assert.Equal(t, "drop the call if caller is talking more than permitted time", rec.fired[3])
	assert.Equal(t, "call in progress dropped", rec.fired[4])
	assert.Zero(t, s.FactCount())
	assert.Equal(t, int64(3600_000), s.CurrentTime())
}

func TestSession_CancelledActivationDoesNotFire(t *testing.T) {
	s, rec := newTestSession(t, callRules())

	insertAll(t, s, dialing("11111", "22222"))
	fire(t, s)
	call := s.Facts()[0]

	require.NoError(t, s.Delete(call.Handle))
	s.AdvanceTime(2, time.Hour)
	assert.Equal(t, 0, fire(t, s))
	assert.Equal(t, []string{"input call"}, rec.fired)
	assert.Zero(t, s.PendingActivations())
}

func TestSession_TriggerAllScheduledAndRewind(t *testing.T) {
	s, rec := newTestSession(t, callRules())

	insertAll(t, s, dialing("11111", "22222"))
	fire(t, s)

	jump := math.MaxInt64 - s.CurrentTime()
	s.AdvanceTime(jump, time.Millisecond)
	assert.Equal(t, 2, fire(t, s))
	s.AdvanceTime(-jump, time.Millisecond)

	assert.Equal(t, int64(0), s.CurrentTime())
	assert.Equal(t, "call in progress dropped", rec.fired[len(rec.fired)-1])
}

func TestSession_ConflictResolution(t *testing.T) {
	rules := []ir.Rule{
		{Name: "low", When: []ir.Pattern{{Type: "X"}}},
		{Name: "high", Salience: 10, When: []ir.Pattern{{Type: "X"}}},
		{Name: "second low", When: []ir.Pattern{{Type: "X"}}},
	}
	s, rec := newTestSession(t, rules)

	insertAll(t, s, ir.NewFact("X", ir.O("n", ir.IRInt(1))), ir.NewFact("X", ir.O("n", ir.IRInt(2))))
	assert.Equal(t, 6, fire(t, s))
	assert.Equal(t, []string{"high", "high", "low", "low", "second low", "second low"}, rec.fired)
}

func TestSession_RefractionAndVersions(t *testing.T) {
	s, rec := newTestSession(t, []ir.Rule{counterRule("atomic int rule", "AtomicInteger")})

	counter := ir.NewFact("AtomicInteger", ir.O("value", ir.IRInt(0)))
	insertAll(t, s, counter)
	assert.Equal(t, 1, fire(t, s))
	assert.Equal(t, 0, fire(t, s), "value is no longer zero")

	assert.Equal(t, ir.IRInt(1), counter.Fields["value"], "increment mutates the caller's fact")
	require.Len(t, rec.updated, 1)
	assert.Equal(t, ir.IRInt(0), rec.updated[0].Old.(*ir.Fact).Fields["value"])
	assert.Equal(t, "atomic int rule", rec.updated[0].Rule)
}

func TestSession_NoLoopSuppressesSelfActivation(t *testing.T) {
	touch := ir.Rule{
		Name:   "touch",
		NoLoop: true,
		When:   []ir.Pattern{{Bind: "d", Type: "Dialing"}},
		Then: []ir.Action{{Kind: ir.ActionModify, Target: "d", Fields: map[string]ir.Operand{
			"touched": ir.Lit(ir.IRBool(true)),
		}}},
	}
	s, rec := newTestSession(t, []ir.Rule{touch})

	insertAll(t, s, dialing("1", "2"))
	assert.Equal(t, 1, fire(t, s))
	assert.Equal(t, []string{"touch"}, rec.fired)
}

func TestSession_LoopingRuleHitsQuota(t *testing.T) {
	touch := ir.Rule{
		Name: "touch",
		When: []ir.Pattern{{Bind: "d", Type: "Dialing"}},
		Then: []ir.Action{{Kind: ir.ActionIncrement, Target: "d", Field: "n", By: 1}},
	}
	s, _ := newTestSession(t, []ir.Rule{touch}, WithMaxFirings(5))

	insertAll(t, s, ir.NewFact("Dialing", ir.O("n", ir.IRInt(0))))
	n, err := s.FireAllRules()
	require.Error(t, err)
	assert.Equal(t, 5, n)
	assert.True(t, IsQuotaError(err))

	var fe *FiringsExceededError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "session-1", fe.SessionID)
	assert.Equal(t, "touch", fe.Rule)
	assert.Equal(t, 5, fe.Limit)
}

func TestSession_ConstraintOperators(t *testing.T) {
	tests := []struct {
		name  string
		op    ir.Op
		value ir.IRValue
		want  bool
	}{
		{"eq match", ir.OpEq, ir.IRInt(5), true},
		{"eq miss", ir.OpEq, ir.IRInt(6), false},
		{"ne", ir.OpNe, ir.IRInt(6), true},
		{"lt", ir.OpLt, ir.IRInt(6), true},
		{"le", ir.OpLe, ir.IRInt(5), true},
		{"gt miss", ir.OpGt, ir.IRInt(5), false},
		{"ge", ir.OpGe, ir.IRInt(5), true},
		{"kind mismatch never orders", ir.OpLt, ir.IRString("9"), false},
		{"ne across kinds", ir.OpNe, ir.IRString("5"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := ir.Rule{Name: "r", When: []ir.Pattern{{Type: "N", Where: []ir.Constraint{
				{Field: "v", Op: tt.op, Value: ir.Lit(tt.value)},
			}}}}
			s, _ := newTestSession(t, []ir.Rule{rule})
			insertAll(t, s, ir.NewFact("N", ir.O("v", ir.IRInt(5))))

			fired := fire(t, s)
			assert.Equal(t, tt.want, fired == 1)
		})
	}
}

func TestSession_MissingFieldReadsAsNull(t *testing.T) {
	rule := ir.Rule{Name: "unaudited", When: []ir.Pattern{{Type: "Dialing", Where: []ir.Constraint{
		{Field: "audited", Op: ir.OpNe, Value: ir.Lit(ir.IRBool(true))},
	}}}}
	s, _ := newTestSession(t, []ir.Rule{rule})

	insertAll(t, s, dialing("1", "2"))
	assert.Equal(t, 1, fire(t, s))
}

type goCall struct {
	CallerNumber string
	Minutes      int
}

func TestSession_GoStructFacts(t *testing.T) {
	rule := ir.Rule{Name: "long call", When: []ir.Pattern{{Type: "goCall", Where: []ir.Constraint{
		{Field: "minutes", Op: ir.OpGt, Value: ir.Lit(ir.IRInt(60))},
	}}}}
	s, rec := newTestSession(t, []ir.Rule{rule})

	insertAll(t, s, &goCall{CallerNumber: "1", Minutes: 10}, &goCall{CallerNumber: "2", Minutes: 90})
	assert.Equal(t, 1, fire(t, s))
	require.Len(t, rec.timings, 1)
	assert.Equal(t, "2", rec.timings[0].Tuple[0].(*goCall).CallerNumber)
}

func TestSession_ModifyNonIRFactFails(t *testing.T) {
	rule := ir.Rule{
		Name: "bump",
		When: []ir.Pattern{{Bind: "c", Type: "goCall"}},
		Then: []ir.Action{{Kind: ir.ActionIncrement, Target: "c", Field: "Minutes", By: 1}},
	}
	s, _ := newTestSession(t, []ir.Rule{rule})

	insertAll(t, s, &goCall{})
	_, err := s.FireAllRules()
	require.Error(t, err)
	assert.True(t, IsConsequenceError(err))
	assert.Contains(t, err.Error(), "rule=bump")
}

func TestSession_AfterMatchFiredElapsed(t *testing.T) {
	wall := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		wall = wall.Add(3 * time.Millisecond)
		return wall
	}
	s, rec := newTestSession(t, []ir.Rule{{Name: "r", When: []ir.Pattern{{Type: "X"}}}}, WithNow(now))

	insertAll(t, s, ir.NewFact("X"))
	fire(t, s)

	require.Len(t, rec.timings, 1)
	assert.Equal(t, 3*time.Millisecond, rec.timings[0].Elapsed)
}

func TestSession_ListenersInRegistrationOrder(t *testing.T) {
	s, _ := newTestSession(t, []ir.Rule{{Name: "r", When: []ir.Pattern{{Type: "X"}}}})

	var order []string
	first := &orderListener{name: "first", order: &order}
	second := &orderListener{name: "second", order: &order}
	s.AddListener(first)
	s.AddListener(second)

	insertAll(t, s, ir.NewFact("X"))
	fire(t, s)
	assert.Equal(t, []string{"first", "second"}, order)

	s.RemoveListener(first)
	insertAll(t, s, ir.NewFact("X"))
	fire(t, s)
	assert.Equal(t, []string{"first", "second", "second"}, order)
}

type orderListener struct {
	name  string
	order *[]string
}

func (l *orderListener) BeforeMatchFired(ir.MatchEvent) { *l.order = append(*l.order, l.name) }

func TestSession_Globals(t *testing.T) {
	s, _ := newTestSession(t, callRules())

	require.NoError(t, s.SetGlobal("list", "value"))
	v, ok := s.Global("list")
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	assert.Error(t, s.SetGlobal("", 1))
}

func TestSession_Dispose(t *testing.T) {
	s, _ := newTestSession(t, callRules())
	insertAll(t, s, dialing("1", "2"))

	s.Dispose()
	s.Dispose()

	_, err := s.Insert(dialing("3", "4"))
	assert.True(t, IsDisposedError(err))
	_, err = s.FireAllRules()
	assert.True(t, IsDisposedError(err))
	assert.Zero(t, s.FactCount())
}

func TestSession_DeleteUnknownHandle(t *testing.T) {
	s, _ := newTestSession(t, callRules())

	err := s.Delete(42)
	require.Error(t, err)
	assert.True(t, IsInvalidFactError(err))
}

func TestSession_Objects(t *testing.T) {
	s, _ := newTestSession(t, callRules())
	insertAll(t, s, dialing("1", "2"), ir.NewFact("Other"))

	dials := s.Objects(func(f any) bool { return ir.TypeOf(f) == "Dialing" })
	assert.Len(t, dials, 1)
	assert.Len(t, s.Objects(nil), 2)

	h, ok := s.Handle(dials[0])
	assert.True(t, ok)
	assert.Equal(t, ir.FactHandle(1), h)
}
