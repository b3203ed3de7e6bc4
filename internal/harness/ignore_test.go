package harness

import (
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIgnoreSet_IsEligible(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		rule     string
		eligible bool
	}{
		{"no patterns", nil, "anything", true},
		{"exact", []string{"audit"}, "audit", false},
		{"star", []string{"audit:*"}, "audit: dial-up seen", false},
		{"star stops at slash", []string{"billing/*"}, "billing/invoice/late", true},
		{"double star crosses slash", []string{"billing/**"}, "billing/invoice/late", false},
		{"question mark", []string{"rule ?"}, "rule 7", false},
		{"class", []string{"rule [0-3]"}, "rule 7", true},
		{"no match", []string{"audit*"}, "input call", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewIgnoreSet(tt.patterns...)
			require.NoError(t, err)
			assert.Equal(t, tt.eligible, s.IsEligible(tt.rule))
		})
	}
}

func TestIgnoreSet_BadPattern(t *testing.T) {
	s, err := NewIgnoreSet("ok")
	require.NoError(t, err)

	err = s.Add("fine", "broken[")
	require.Error(t, err)
	assert.ErrorIs(t, err, doublestar.ErrBadPattern)
	assert.Equal(t, []string{"ok"}, s.Patterns(), "nothing added on error")
}

func TestIgnoreSet_Cumulative(t *testing.T) {
	s, err := NewIgnoreSet("a*")
	require.NoError(t, err)
	require.NoError(t, s.Add("b*"))

	assert.False(t, s.IsEligible("alpha"))
	assert.False(t, s.IsEligible("beta"))
	assert.True(t, s.IsEligible("gamma"))
}

func TestIgnoreSet_OrderDoesNotMatter(t *testing.T) {
	expected := AnyCount("alpha", "beta", "gamma")
	actual := countsOf("beta", "delta", "audit one")

	forward, err := NewIgnoreSet("a*", "d*")
	require.NoError(t, err)
	backward, err := NewIgnoreSet("d*", "a*")
	require.NoError(t, err)

	errF := CompareActivations(expected, actual, forward.IsEligible)
	errB := CompareActivations(expected, actual, backward.IsEligible)

	require.Error(t, errF)
	assert.Equal(t, errF, errB)
	var ae *AssertionError
	require.ErrorAs(t, errF, &ae)
	assert.Equal(t, []string{"gamma"}, ae.Missing)
	assert.Empty(t, ae.Unexpected)
}

func TestIgnoreSet_NilAcceptsAll(t *testing.T) {
	var s *IgnoreSet
	assert.True(t, s.IsEligible("x"))
	assert.Nil(t, s.Patterns())
}
