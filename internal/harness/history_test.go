package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ruleassert/internal/ir"
)

type point struct{ X, Y int }

func TestFactHistory_EqualFactsStayDistinct(t *testing.T) {
	h := NewFactHistory(true)
	a := counter("C")
	b := counter("C")
	h.RecordInsertion(1, a)

	assert.True(t, h.IsKnown(a))
	assert.False(t, h.IsKnown(b), "structurally equal but never inserted")
}

func TestFactHistory_ValueFacts(t *testing.T) {
	h := NewFactHistory(true)
	h.RecordInsertion(1, point{1, 2})

	assert.True(t, h.IsKnown(point{1, 2}))
	assert.False(t, h.IsKnown(point{2, 1}))
	assert.False(t, h.IsKnown(map[string]int{}), "non-comparable facts are never known")
}

func TestFactHistory_RecordIsIdempotent(t *testing.T) {
	h := NewFactHistory(true)
	a, b := counter("A"), counter("B")
	h.RecordInsertion(1, a)
	h.RecordInsertion(2, b)
	h.RecordInsertion(1, a)

	assert.Equal(t, 2, h.Len())
	ordered := h.Ordered([]ir.FactEntry{{Handle: 2, Fact: b}, {Handle: 1, Fact: a}})
	assert.Equal(t, ir.FactHandle(1), ordered[0].Handle, "first index kept")
}

func TestFactHistory_Ordered(t *testing.T) {
	h := NewFactHistory(true)
	h.RecordInsertion(5, "five")
	h.RecordInsertion(2, "two")
	h.RecordInsertion(9, "nine")

	live := []ir.FactEntry{
		{Handle: 9, Fact: "nine"},
		{Handle: 7, Fact: "unknown"},
		{Handle: 5, Fact: "five"},
		{Handle: 2, Fact: "two"},
	}
	ordered := h.Ordered(live)

	var got []any
	for _, e := range ordered {
		got = append(got, e.Fact)
	}
	assert.Equal(t, []any{"five", "two", "nine", "unknown"}, got)
	assert.Equal(t, "nine", live[0].Fact, "input untouched")
}

func TestFactHistory_Disabled(t *testing.T) {
	h := NewFactHistory(false)
	a := counter("A")
	h.RecordInsertion(1, a)
	h.FactInserted(ir.FactEvent{Handle: 2, Fact: a})

	assert.False(t, h.Enabled())
	assert.False(t, h.IsKnown(a))
	assert.Zero(t, h.Len())

	live := []ir.FactEntry{{Handle: 2, Fact: "b"}, {Handle: 1, Fact: "a"}}
	assert.Equal(t, live, h.Ordered(live))
}

func TestFactHistory_Clear(t *testing.T) {
	h := NewFactHistory(true)
	a := counter("A")
	h.FactInserted(ir.FactEvent{Handle: 1, Fact: a})
	h.Clear()

	assert.False(t, h.IsKnown(a))
	assert.Zero(t, h.Len())
}
