package harness

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/ir"
	"github.com/roach88/ruleassert/internal/loader"
	"github.com/roach88/ruleassert/internal/testutil"
)

const (
	callsRules  = "../../testdata/rules/calls.cue"
	atomicRules = "../../testdata/rules/atomic.cue"
	auditRules  = "../../testdata/rules/audit.cue"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

// newTestHarness builds a rule base from resources and drives a fresh
// session over it.
func newTestHarness(t *testing.T, resources []string, opts ...Option) *Harness {
	t.Helper()
	rb, err := loader.Build(resources, loader.WithEngineOptions(
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(t.Name())),
		engine.WithNow(testutil.NewStepClock(time.Unix(0, 0), time.Millisecond).Now),
	))
	require.NoError(t, err)

	session, err := NewSessionFactory(rb)(nil)
	require.NoError(t, err)

	h, err := New(session, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func dialing(caller, callee string) *ir.Fact {
	return ir.NewFact("Dialing",
		ir.O("callerNumber", ir.IRString(caller)),
		ir.O("calleeNumber", ir.IRString(callee)),
	)
}

func counter(typ string) *ir.Fact {
	return ir.NewFact(typ, ir.O("value", ir.IRInt(0)))
}

// fakeSession fires scripted rules on given ticks, where a tick is any
// AdvanceTime by one unit.
type fakeSession struct {
	now       int64
	ticks     int
	fires     int
	fireAt    map[int][]string
	listeners []any
	facts     []ir.FactEntry
	globals   map[string]any
	disposed  bool
}

func newFakeSession(fireAt map[int][]string) *fakeSession {
	return &fakeSession{fireAt: fireAt, globals: make(map[string]any)}
}

func (f *fakeSession) ID() string { return "fake" }

func (f *fakeSession) Insert(fact any) (ir.FactHandle, error) {
	h := ir.FactHandle(len(f.facts) + 1)
	f.facts = append(f.facts, ir.FactEntry{Handle: h, Fact: fact})
	for _, l := range f.listeners {
		if fl, ok := l.(ir.FactInsertListener); ok {
			fl.FactInserted(ir.FactEvent{Handle: h, Fact: fact, Clock: f.now})
		}
	}
	return h, nil
}

func (f *fakeSession) FireAllRules() (int, error) {
	f.fires++
	rules := f.fireAt[f.ticks]
	delete(f.fireAt, f.ticks)
	for _, r := range rules {
		for _, l := range f.listeners {
			if ml, ok := l.(ir.MatchListener); ok {
				ml.BeforeMatchFired(ir.MatchEvent{Rule: r, Clock: f.now})
			}
		}
	}
	return len(rules), nil
}

func (f *fakeSession) Facts() []ir.FactEntry { return f.facts }
func (f *fakeSession) FactCount() int64      { return int64(len(f.facts)) }

func (f *fakeSession) SetGlobal(name string, value any) error {
	f.globals[name] = value
	return nil
}

func (f *fakeSession) AddListener(l any) { f.listeners = append(f.listeners, l) }

func (f *fakeSession) RemoveListener(l any) {
	for i, x := range f.listeners {
		if x == l {
			f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
			return
		}
	}
}

func (f *fakeSession) AdvanceTime(amount int64, unit time.Duration) {
	if amount == 1 {
		f.ticks++
	}
	f.now += amount * int64(unit/time.Millisecond)
}

func (f *fakeSession) CurrentTime() int64 { return f.now }
func (f *fakeSession) Dispose()           { f.disposed = true }

func newFakeHarness(t *testing.T, fireAt map[int][]string, opts ...Option) (*Harness, *fakeSession) {
	t.Helper()
	fs := newFakeSession(fireAt)
	h, err := New(fs, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h, fs
}
