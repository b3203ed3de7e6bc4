// Package harness tests rule bases by driving sessions and asserting on
// what fired.
//
// A Harness wraps one session. It counts every rule firing, remembers the
// insertion order of facts, and advances the session's pseudo clock one
// tick at a time, firing after every tick so that timed rules behave as
// they would against a real clock.
//
// # Assertions
//
// Rule assertions come in two flavours:
//
//   - cumulative: AssertAllActivations sees every firing since the harness
//     was created
//   - incremental: AssertActivated sees only firings since the previous
//     AssertActivated call
//
// Both accept bare rule names (any positive count) or Times(rule, n).
// Rules matching an ignore pattern (doublestar syntax, e.g. "audit:*") are
// never reported as missing or unexpected, but explicit counts still apply
// to them.
//
// AwaitFor polls the clock until rules fire or the tick budget runs out.
// AssertNoScheduledActivations jumps to the end of time, fires, rewinds,
// and fails if anything eligible fired.
//
// # Suites
//
// A Suite shares one compiled rule base across tests and applies each
// test's expectations after its body runs:
//
//	suite, err := harness.NewSuite(ctx, harness.SuiteConfig{
//	    Resources:   []string{"rules/*.cue"},
//	    IgnoreRules: []string{"audit:*"},
//	})
//	...
//	suite.Run(t, harness.TestConfig{Expected: []string{"input call"}},
//	    func(h *harness.Harness) error {
//	        _, err := h.InsertAndFire(fact)
//	        return err
//	    })
//
// Body and final check errors are reported together.
//
// # Scenarios
//
// Scenarios are YAML files naming a suite, a test, facts and steps:
//
//	name: logical_events
//	suite:
//	  resources: ["../rules/calls.cue"]
//	test:
//	  expected: ["input call"]
//	facts:
//	  d: {type: Dialing, fields: {callerNumber: "11111", calleeNumber: "22222"}}
//	steps:
//	  - insert_and_fire: [d]
//	  - assert_activated: ["input call"]
//	  - advance: 1h
//
// Run executes a scenario against an in-memory journal with a fixed
// session id and a stepping wall clock, so the resulting trace is stable
// enough for golden files (see RunWithGolden).
package harness
