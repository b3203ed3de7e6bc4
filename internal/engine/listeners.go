package engine

import (
	"reflect"

	"github.com/roach88/ruleassert/internal/ir"
)

// listenerSet keeps one subscriber list per event capability.
// Subscribers are invoked in registration order.
type listenerSet struct {
	beforeMatch []ir.MatchListener
	afterMatch  []ir.MatchTimingListener
	inserted    []ir.FactInsertListener
	updated     []ir.FactUpdateListener
	deleted     []ir.FactDeleteListener
}

func (ls *listenerSet) add(l any) {
	if x, ok := l.(ir.MatchListener); ok {
		ls.beforeMatch = append(ls.beforeMatch, x)
	}
	if x, ok := l.(ir.MatchTimingListener); ok {
		ls.afterMatch = append(ls.afterMatch, x)
	}
	if x, ok := l.(ir.FactInsertListener); ok {
		ls.inserted = append(ls.inserted, x)
	}
	if x, ok := l.(ir.FactUpdateListener); ok {
		ls.updated = append(ls.updated, x)
	}
	if x, ok := l.(ir.FactDeleteListener); ok {
		ls.deleted = append(ls.deleted, x)
	}
}

// remove drops every registration of l. Listeners whose dynamic type is
// not comparable cannot be identified and are left in place.
func (ls *listenerSet) remove(l any) {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return
	}
	ls.beforeMatch = without(ls.beforeMatch, l)
	ls.afterMatch = without(ls.afterMatch, l)
	ls.inserted = without(ls.inserted, l)
	ls.updated = without(ls.updated, l)
	ls.deleted = without(ls.deleted, l)
}

func without[T any](list []T, l any) []T {
	out := make([]T, 0, len(list))
	for _, x := range list {
		if any(x) != l {
			out = append(out, x)
		}
	}
	return out
}

func (ls *listenerSet) fireBeforeMatch(ev ir.MatchEvent) {
	for _, l := range ls.beforeMatch {
		l.BeforeMatchFired(ev)
	}
}

func (ls *listenerSet) fireAfterMatch(ev ir.MatchEvent) {
	for _, l := range ls.afterMatch {
		l.AfterMatchFired(ev)
	}
}

func (ls *listenerSet) fireInserted(ev ir.FactEvent) {
	for _, l := range ls.inserted {
		l.FactInserted(ev)
	}
}

func (ls *listenerSet) fireUpdated(ev ir.FactEvent) {
	for _, l := range ls.updated {
		l.FactUpdated(ev)
	}
}

func (ls *listenerSet) fireDeleted(ev ir.FactEvent) {
	for _, l := range ls.deleted {
		l.FactDeleted(ev)
	}
}
