package harness

import (
	"errors"
	"fmt"
	"strings"
)

// Assertion failure types.
const (
	TypeActivations = "activations"  // missing or unexpected rules
	TypeCount       = "count"        // exact count mismatch
	TypeAwait       = "await"        // tick budget exhausted
	TypeScheduled   = "scheduled"    // something is still scheduled
	TypeFacts       = "facts"        // fact present, absent or miscounted
	TypeUnknownFact = "unknown_fact" // fact was never inserted
	TypeLookup      = "lookup"       // object lookup matched zero or many facts
)

// AssertionError is returned when an assertion fails.
// It includes enough detail to name every rule or fact involved.
type AssertionError struct {
	Type       string   // Assertion type for categorization
	Missing    []string // rules expected but not fired (activations, await)
	Unexpected []string // rules fired but not expected (activations, scheduled)
	Rule       string   // rule with a count mismatch
	Expected   int      // expected count, or fact count
	Actual     int      // actual count, or fact count
	Facts      []string // rendered facts involved
	Message    string   // header for fact and lookup failures
}

// Error renders the failure report.
func (e *AssertionError) Error() string {
	switch e.Type {
	case TypeActivations:
		var sections []string
		if len(e.Missing) > 0 {
			sections = append(sections, section(e.Missing,
				"Activation was not triggered:", "Activations were not triggered:"))
		}
		if len(e.Unexpected) > 0 {
			sections = append(sections, section(e.Unexpected,
				"Activation was triggered:", "Activations were triggered:"))
		}
		return strings.Join(sections, "\n")

	case TypeCount:
		return fmt.Sprintf("'%s' should be activated %d time(s) but actually it was activated %d time(s)",
			e.Rule, e.Expected, e.Actual)

	case TypeAwait:
		if len(e.Missing) == 0 {
			return "Expected at least one scheduled activation"
		}
		return section(e.Missing, "Activation was not scheduled:", "Activations were not scheduled:")

	case TypeScheduled:
		return section(e.Unexpected, "Activation was scheduled:", "Activations were scheduled:")
	}

	if len(e.Facts) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Facts, "\n")
}

func section(names []string, singular, plural string) string {
	header := plural
	if len(names) == 1 {
		header = singular
	}
	return header + "\n" + strings.Join(names, "\n")
}

// IsAssertionError reports whether err contains an *AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// IsUnknownFact reports whether err is a failure about a fact that was
// never inserted, which is a usage error rather than a retraction result.
func IsUnknownFact(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae) && ae.Type == TypeUnknownFact
}

// Expectation is one expected rule. Count 0 accepts any positive count.
type Expectation struct {
	Rule  string
	Count int
}

// Times expects rule to fire exactly n times.
func Times(rule string, n int) Expectation {
	return Expectation{Rule: rule, Count: n}
}

// AnyCount expects each rule to fire at least once.
func AnyCount(rules ...string) []Expectation {
	out := make([]Expectation, len(rules))
	for i, r := range rules {
		out[i] = Expectation{Rule: r}
	}
	return out
}

// CompareActivations checks actual against expected.
//
// Missing and unexpected rules are computed over rules accepted by eligible
// and reported together. Only when both sets are empty are exact counts
// checked, in actual's order; counts apply to ignored rules too.
// A nil eligible accepts every rule.
func CompareActivations(expected []Expectation, actual *ActivationCount, eligible func(string) bool) error {
	if eligible == nil {
		eligible = func(string) bool { return true }
	}

	want := make(map[string]int, len(expected))
	var order []string
	for _, e := range expected {
		if _, dup := want[e.Rule]; !dup {
			order = append(order, e.Rule)
		}
		want[e.Rule] = e.Count
	}

	var missing, unexpected []string
	for _, r := range order {
		if !actual.Has(r) && eligible(r) {
			missing = append(missing, r)
		}
	}
	for _, r := range actual.Rules() {
		if _, ok := want[r]; !ok && eligible(r) {
			unexpected = append(unexpected, r)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		return &AssertionError{Type: TypeActivations, Missing: missing, Unexpected: unexpected}
	}

	for _, r := range actual.Rules() {
		n, ok := want[r]
		if !ok || n == 0 {
			continue
		}
		if got := actual.Count(r); got != n {
			return &AssertionError{Type: TypeCount, Rule: r, Expected: n, Actual: got}
		}
	}
	return nil
}
