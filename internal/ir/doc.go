// Package ir provides the shared types of ruleassert: field values, facts,
// compiled rules and the session event contract.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// the rule engine and the test harness decoupled: the harness depends on the
// event and listener types declared here, never on engine internals.
//
// Key design constraints:
//   - NO float types in fact fields - use int64 for numbers
//   - All JSON tags use snake_case
//   - Virtual time is always int64 milliseconds of the session's pseudo clock
package ir
