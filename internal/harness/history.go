package harness

import (
	"sort"

	"github.com/roach88/ruleassert/internal/ir"
)

// FactHistory remembers every fact inserted into a session, keyed by the
// handle the session assigned to the insertion.
//
// Two equal facts inserted separately get separate handles and stay
// distinguishable. A disabled history records nothing and answers every
// query as if it were empty.
type FactHistory struct {
	enabled  bool
	next     int
	byHandle map[ir.FactHandle]historyEntry
}

type historyEntry struct {
	fact  any
	index int
}

// NewFactHistory creates a history. When enabled is false the history is inert.
func NewFactHistory(enabled bool) *FactHistory {
	return &FactHistory{enabled: enabled, byHandle: make(map[ir.FactHandle]historyEntry)}
}

// Enabled reports whether insertions are recorded.
func (h *FactHistory) Enabled() bool {
	return h.enabled
}

// RecordInsertion assigns the next insertion index to handle.
// Recording a handle twice keeps the first index.
func (h *FactHistory) RecordInsertion(handle ir.FactHandle, fact any) {
	if !h.enabled {
		return
	}
	if _, ok := h.byHandle[handle]; ok {
		return
	}
	h.byHandle[handle] = historyEntry{fact: fact, index: h.next}
	h.next++
}

// FactInserted implements ir.FactInsertListener.
func (h *FactHistory) FactInserted(ev ir.FactEvent) {
	h.RecordInsertion(ev.Handle, ev.Fact)
}

// IsKnown reports whether fact was ever inserted. Pointer facts compare by
// identity, value facts with ==.
func (h *FactHistory) IsKnown(fact any) bool {
	if !h.enabled || !ir.Comparable(fact) {
		return false
	}
	for _, e := range h.byHandle {
		if e.fact == fact {
			return true
		}
	}
	return false
}

// Ordered returns live sorted by insertion index. Facts the history does
// not know keep their relative order after the known ones.
func (h *FactHistory) Ordered(live []ir.FactEntry) []ir.FactEntry {
	out := append([]ir.FactEntry(nil), live...)
	if !h.enabled {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := h.byHandle[out[i].Handle]
		b, bok := h.byHandle[out[j].Handle]
		switch {
		case aok && bok:
			return a.index < b.index
		default:
			return aok && !bok
		}
	})
	return out
}

// Len returns the number of recorded insertions.
func (h *FactHistory) Len() int {
	return len(h.byHandle)
}

// Clear forgets every insertion.
func (h *FactHistory) Clear() {
	h.byHandle = make(map[ir.FactHandle]historyEntry)
	h.next = 0
}
