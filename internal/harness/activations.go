package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/ruleassert/internal/ir"
)

// ActivationCount maps rule names to fire counts, ordered by each rule's
// first firing. The zero value is empty and ready to use.
type ActivationCount struct {
	rules  []string
	counts map[string]int
}

// NewActivationCount creates an empty count.
func NewActivationCount() *ActivationCount {
	return &ActivationCount{}
}

func (c *ActivationCount) add(rule string, n int) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[rule]; !ok {
		c.rules = append(c.rules, rule)
	}
	c.counts[rule] += n
}

// Count returns how often rule fired.
func (c *ActivationCount) Count(rule string) int {
	if c == nil {
		return 0
	}
	return c.counts[rule]
}

// Has reports whether rule fired at least once.
func (c *ActivationCount) Has(rule string) bool {
	if c == nil {
		return false
	}
	_, ok := c.counts[rule]
	return ok
}

// Rules returns the rule names in first-fire order.
func (c *ActivationCount) Rules() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.rules...)
}

// Len returns the number of distinct rules.
func (c *ActivationCount) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Total returns the sum of all counts.
func (c *ActivationCount) Total() int {
	total := 0
	if c == nil {
		return total
	}
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Snapshot returns an independent copy.
func (c *ActivationCount) Snapshot() *ActivationCount {
	out := NewActivationCount()
	if c == nil {
		return out
	}
	for _, r := range c.rules {
		out.add(r, c.counts[r])
	}
	return out
}

// Delta returns the count increase since baseline.
//
// Rules absent from baseline contribute their full count, rules present in
// both contribute the difference. Rules that did not fire since baseline
// are omitted. The result keeps c's order; neither input is modified.
func (c *ActivationCount) Delta(baseline *ActivationCount) *ActivationCount {
	out := NewActivationCount()
	if c == nil {
		return out
	}
	for _, r := range c.rules {
		if d := c.counts[r] - baseline.Count(r); d > 0 {
			out.add(r, d)
		}
	}
	return out
}

// Filter returns the rules accepted by keep, in order.
func (c *ActivationCount) Filter(keep func(string) bool) *ActivationCount {
	out := NewActivationCount()
	if c == nil {
		return out
	}
	for _, r := range c.rules {
		if keep(r) {
			out.add(r, c.counts[r])
		}
	}
	return out
}

// String renders the counts as {rule: n, ...}.
func (c *ActivationCount) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, r := range c.Rules() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %d", r, c.Count(r))
	}
	sb.WriteByte('}')
	return sb.String()
}

// Registry counts rule firings for one harness.
//
// Registry implements ir.MatchListener; a session subscribed to it records
// every firing before the consequence runs.
type Registry struct {
	counts *ActivationCount
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counts: NewActivationCount()}
}

// RecordFiring increments rule's count, creating it with 1.
func (r *Registry) RecordFiring(rule string) {
	r.counts.add(rule, 1)
}

// BeforeMatchFired implements ir.MatchListener.
func (r *Registry) BeforeMatchFired(ev ir.MatchEvent) {
	r.RecordFiring(ev.Rule)
}

// Counts returns a snapshot of the current counts.
func (r *Registry) Counts() *ActivationCount {
	return r.counts.Snapshot()
}

// Reset drops all counts.
func (r *Registry) Reset() {
	r.counts = NewActivationCount()
}
