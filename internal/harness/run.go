package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ruleassert/internal/engine"
	"github.com/roach88/ruleassert/internal/store"
	"github.com/roach88/ruleassert/internal/testutil"
)

// scenarioEpoch is the wall clock start of every scenario run.
var scenarioEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each run gets its own rule base, a fixed session id, a stepping wall
// clock and an in-memory journal, so identical scenarios produce identical
// traces. Step and final check failures are reported in Result.Errors; the
// error return is for scenarios that cannot run at all.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	sessionID := "scenario-" + scenario.Name
	opts = append([]Option{
		WithJournal(st),
		WithEngineOptions(
			engine.WithIDGenerator(testutil.NewFixedIDGenerator(sessionID)),
			engine.WithNow(testutil.NewStepClock(scenarioEpoch, time.Millisecond).Now),
		),
	}, opts...)

	suite, err := NewSuite(ctx, scenario.Suite, opts...)
	if err != nil {
		return nil, err
	}
	defer suite.Close()

	facts, err := scenario.newFacts()
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.AddError(suite.Evaluate(ctx, scenario.Name, scenario.Test, func(h *Harness) error {
		return runSteps(h, facts, scenario.Steps)
	}))

	trace, err := st.ReadTrace(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	result.Trace = TraceEvents(trace)
	if result.Activations, err = st.FiringCounts(ctx, sessionID); err != nil {
		return nil, err
	}
	return result, nil
}
