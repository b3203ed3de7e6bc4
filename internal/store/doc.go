// Package store provides the SQLite journal of harness sessions.
//
// The journal is an append-only log with:
//   - Sessions: one row per session, with the rule set hash
//   - Fact events: insertions, updates and deletions of facts
//   - Firings: rule firings with the handles of the matched tuple
//
// Fact events and firings share one per-session seq, assigned by the
// writer, so a trace is both tables merged ORDER BY seq ASC.
//
// The journal is diagnostic only. Nothing in a test run reads it back to
// decide pass or fail, except scenario traces compared against golden files.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Handles and fact fields are stored as canonical JSON (internal/ir).
package store
