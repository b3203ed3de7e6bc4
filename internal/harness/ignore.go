package harness

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreSet holds rule name patterns excluded from missing and extra
// activation checks. Patterns use doublestar syntax: * within a segment,
// ** across / separated segments, ? and character classes.
type IgnoreSet struct {
	patterns []string
}

// NewIgnoreSet creates a set from patterns.
func NewIgnoreSet(patterns ...string) (*IgnoreSet, error) {
	s := &IgnoreSet{}
	if err := s.Add(patterns...); err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends patterns. Nothing is added if any pattern is malformed.
func (s *IgnoreSet) Add(patterns ...string) error {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("ignore pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}
	s.patterns = append(s.patterns, patterns...)
	return nil
}

// IsEligible reports whether no pattern matches rule.
func (s *IgnoreSet) IsEligible(rule string) bool {
	if s == nil {
		return true
	}
	for _, p := range s.patterns {
		if ok, _ := doublestar.Match(p, rule); ok {
			return false
		}
	}
	return true
}

// Patterns returns the patterns in the order they were added.
func (s *IgnoreSet) Patterns() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.patterns...)
}
