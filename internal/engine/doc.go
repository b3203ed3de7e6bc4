// Package engine implements the reference rule engine driven by the harness.
//
// A RuleBase holds validated rules in declaration order. Each Session
// created from it owns a working memory, a pseudo clock and an agenda.
//
// ARCHITECTURE:
//
// Working memory changes (Insert, Delete, and the insert/retract/modify/
// increment actions of consequences) recompute the agenda. An activation
// is one rule matched against one tuple of facts; its key is the rule plus
// the handles and versions of the matched facts. Fired keys are refracted:
// the same tuple at the same versions never fires twice. Activations whose
// match disappears are cancelled.
//
// Timed rules create activations that become eligible once the pseudo
// clock has moved past creation time plus the rule's delay. The clock
// only moves when the caller advances it.
//
// FireAllRules repeatedly fires the best eligible activation:
//  1. higher salience first
//  2. earlier declared rule first
//  3. earlier inserted tuple first
//
// The loop is bounded by a max-firings quota per call.
//
// Sessions are not safe for concurrent use. One goroutine drives a session.
package engine
