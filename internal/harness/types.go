package harness

import (
	"github.com/roach88/ruleassert/internal/ir"
	"github.com/roach88/ruleassert/internal/store"
)

// TraceEvent is one journaled firing or fact event of a scenario run.
type TraceEvent struct {
	Seq     int64   `json:"seq"`
	Kind    string  `json:"kind"` // "fire", "insert", "update" or "delete"
	Clock   string  `json:"clock"`
	Rule    string  `json:"rule,omitempty"`
	Handles []int64 `json:"handles,omitempty"`
	Handle  int64   `json:"handle,omitempty"`
	Type    string  `json:"type,omitempty"`
	Fact    string  `json:"fact,omitempty"`
}

// TraceEvents converts journal trace entries, keeping their order.
func TraceEvents(entries []store.TraceEntry) []TraceEvent {
	out := make([]TraceEvent, len(entries))
	for i, e := range entries {
		out[i] = traceEvent(e)
	}
	return out
}

func traceEvent(e store.TraceEntry) TraceEvent {
	ev := TraceEvent{
		Seq:   e.Seq,
		Kind:  e.Kind,
		Clock: formatClock(e.ClockMs),
		Rule:  e.Rule,
	}
	if e.Kind == store.KindFire {
		ev.Handles = make([]int64, len(e.Handles))
		for i, h := range e.Handles {
			ev.Handles[i] = int64(h)
		}
		return ev
	}
	ev.Handle = int64(e.Handle)
	ev.Type = e.FactType
	ev.Fact = e.Fact
	return ev
}

// canonical converts the event for canonical JSON, leaving out empty fields.
func (e TraceEvent) canonical() ir.IRObject {
	obj := ir.IRObject{
		"seq":   ir.IRInt(e.Seq),
		"kind":  ir.IRString(e.Kind),
		"clock": ir.IRString(e.Clock),
	}
	if e.Rule != "" {
		obj["rule"] = ir.IRString(e.Rule)
	}
	if e.Kind == store.KindFire {
		handles := make(ir.IRArray, len(e.Handles))
		for i, h := range e.Handles {
			handles[i] = ir.IRInt(h)
		}
		obj["handles"] = handles
		return obj
	}
	obj["handle"] = ir.IRInt(e.Handle)
	obj["type"] = ir.IRString(e.Type)
	obj["fact"] = ir.IRString(e.Fact)
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when no step and no final check failed.
	Pass bool `json:"pass"`

	// Trace contains every firing and fact event in order.
	Trace []TraceEvent `json:"trace"`

	// Activations are the firing counts, in first-fire order.
	Activations []store.RuleCount `json:"activations"`

	// Errors contains failure reports. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Activations: []store.RuleCount{},
		Errors:      []string{},
	}
}

// AddError records err, split into its joined parts, and marks the result
// as failed.
func (r *Result) AddError(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			r.AddError(e)
		}
		return
	}
	r.Errors = append(r.Errors, err.Error())
	r.Pass = false
}

// Snapshot renders the result as canonical JSON for golden comparison.
// Error texts are left out.
func (r *Result) Snapshot(name string) ([]byte, error) {
	trace := make(ir.IRArray, len(r.Trace))
	for i, e := range r.Trace {
		trace[i] = e.canonical()
	}
	activations := make(ir.IRArray, len(r.Activations))
	for i, rc := range r.Activations {
		activations[i] = ir.IRObject{
			"rule":  ir.IRString(rc.Rule),
			"count": ir.IRInt(rc.Count),
		}
	}
	return ir.MarshalCanonical(ir.IRObject{
		"name":        ir.IRString(name),
		"pass":        ir.IRBool(r.Pass),
		"activations": activations,
		"trace":       trace,
	})
}
