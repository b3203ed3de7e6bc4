package engine

import (
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/ruleassert/internal/ir"
)

// factEntry is one live fact in working memory.
// version increases on every modify/increment and is part of activation keys.
type factEntry struct {
	handle  ir.FactHandle
	fact    any
	typ     string
	version int64
}

// activation is a rule matched against one tuple of facts.
type activation struct {
	key       string
	rule      *ir.Rule
	index     int // declaration order of rule
	tuple     []*factEntry
	createdAt int64     // pseudo clock millis
	created   time.Time // wall clock, for AfterMatchFired timing
}

// eligible reports whether the activation may fire at now.
// Untimed activations are always eligible. Timed ones wait until the
// clock has moved at least the rule's delay past creation.
func (a *activation) eligible(now int64) bool {
	delay := a.rule.Delay.Milliseconds()
	if delay <= 0 {
		return true
	}
	if now < a.createdAt {
		return false
	}
	// Unsigned difference cannot overflow when now is near MaxInt64.
	return uint64(now-a.createdAt) >= uint64(delay)
}

// before implements conflict resolution: salience desc, declaration
// order asc, then tuple handles lexicographically.
func (a *activation) before(b *activation) bool {
	if a.rule.Salience != b.rule.Salience {
		return a.rule.Salience > b.rule.Salience
	}
	if a.index != b.index {
		return a.index < b.index
	}
	for i := 0; i < len(a.tuple) && i < len(b.tuple); i++ {
		if a.tuple[i].handle != b.tuple[i].handle {
			return a.tuple[i].handle < b.tuple[i].handle
		}
	}
	return len(a.tuple) < len(b.tuple)
}

func (a *activation) event(clock int64) ir.MatchEvent {
	ev := ir.MatchEvent{
		Rule:    a.rule.Name,
		Tuple:   make([]any, len(a.tuple)),
		Handles: make([]ir.FactHandle, len(a.tuple)),
		Clock:   clock,
	}
	for i, e := range a.tuple {
		ev.Tuple[i] = e.fact
		ev.Handles[i] = e.handle
	}
	return ev
}

// bindings maps the rule's bind names to the tuple entries.
func (a *activation) bindings() map[string]*factEntry {
	bound := make(map[string]*factEntry, len(a.tuple))
	i := 0
	for _, p := range a.rule.When {
		if p.Not {
			continue
		}
		if p.Bind != "" {
			bound[p.Bind] = a.tuple[i]
		}
		i++
	}
	return bound
}

func activationKey(index int, tuple []*factEntry) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(index))
	for _, e := range tuple {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatInt(int64(e.handle), 10))
		sb.WriteByte('@')
		sb.WriteString(strconv.FormatInt(e.version, 10))
	}
	return sb.String()
}

// refresh recomputes the agenda from working memory.
//
// Existing activations whose key still matches are kept with their
// original creation time, so timers keep running across unrelated
// changes. New keys become activations created now. Keys that no longer
// match are dropped. Fired keys are never re-added.
//
// While a no_loop rule's consequence runs, new activations of that same
// rule are refracted instead of scheduled.
func (s *Session) refresh() {
	now := s.clock.Now()
	next := make(map[string]*activation, len(s.pending))

	for i := range s.base.rules {
		r := &s.base.rules[i]
		s.match(r, func(tuple []*factEntry) {
			key := activationKey(i, tuple)
			if s.base.refraction.Fired(s.id, key) {
				return
			}
			if a, ok := s.pending[key]; ok {
				next[key] = a
				return
			}
			if s.firing != nil && s.firing.rule == r && r.NoLoop {
				s.base.refraction.Record(s.id, key)
				return
			}
			next[key] = &activation{
				key:       key,
				rule:      r,
				index:     i,
				tuple:     tuple,
				createdAt: now,
				created:   s.base.now(),
			}
		})
	}
	s.pending = next
}

// nextActivation returns the best eligible activation, or nil.
func (s *Session) nextActivation() *activation {
	now := s.clock.Now()
	var best *activation
	for _, a := range s.pending {
		if !a.eligible(now) {
			continue
		}
		if best == nil || a.before(best) {
			best = a
		}
	}
	return best
}

// match enumerates every tuple of live facts satisfying r's patterns,
// in working memory insertion order. Negated patterns contribute no
// fact to the tuple.
func (s *Session) match(r *ir.Rule, emit func([]*factEntry)) {
	bound := make(map[string]*factEntry, len(r.When))
	var tuple []*factEntry

	var walk func(int)
	walk = func(i int) {
		if i == len(r.When) {
			emit(append([]*factEntry(nil), tuple...))
			return
		}
		p := &r.When[i]
		if p.Not {
			for _, e := range s.facts {
				if e.typ == p.Type && satisfies(p, e, bound) {
					return
				}
			}
			walk(i + 1)
			return
		}
		for _, e := range s.facts {
			if e.typ != p.Type || !satisfies(p, e, bound) {
				continue
			}
			if p.Bind != "" {
				bound[p.Bind] = e
			}
			tuple = append(tuple, e)
			walk(i + 1)
			tuple = tuple[:len(tuple)-1]
			if p.Bind != "" {
				delete(bound, p.Bind)
			}
		}
	}
	walk(0)
}

func satisfies(p *ir.Pattern, e *factEntry, bound map[string]*factEntry) bool {
	for _, c := range p.Where {
		if !evalConstraint(c, e.fact, bound) {
			return false
		}
	}
	return true
}

// evalConstraint compares a fact field with an operand. Missing fields
// read as null. Ordering operators never match across kinds or on null.
func evalConstraint(c ir.Constraint, fact any, bound map[string]*factEntry) bool {
	left := fieldValue(fact, c.Field)
	right := operandValue(c.Value, bound)

	switch c.Op {
	case ir.OpEq:
		return ir.Equal(left, right)
	case ir.OpNe:
		return !ir.Equal(left, right)
	}

	cmp, err := ir.Compare(left, right)
	if err != nil {
		return false
	}
	switch c.Op {
	case ir.OpLt:
		return cmp < 0
	case ir.OpLe:
		return cmp <= 0
	case ir.OpGt:
		return cmp > 0
	case ir.OpGe:
		return cmp >= 0
	}
	return false
}

func operandValue(op ir.Operand, bound map[string]*factEntry) ir.IRValue {
	if op.Ref != nil {
		e, ok := bound[op.Ref.Bind]
		if !ok {
			return ir.IRNull{}
		}
		return fieldValue(e.fact, op.Ref.Field)
	}
	if op.Literal == nil {
		return ir.IRNull{}
	}
	return op.Literal
}

// fieldValue reads a named field of a fact.
//
// *ir.Fact and other FieldReaders answer directly. Plain Go structs are
// read by reflection; a lower camel case name also finds the exported
// field ("calleeNumber" reads CalleeNumber).
func fieldValue(fact any, name string) ir.IRValue {
	if fr, ok := fact.(ir.FieldReader); ok {
		if v, ok := fr.Field(name); ok && v != nil {
			return v
		}
		return ir.IRNull{}
	}

	v := reflect.ValueOf(fact)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ir.IRNull{}
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return ir.IRNull{}
	}

	f := v.FieldByName(name)
	if !f.IsValid() {
		f = v.FieldByName(exported(name))
	}
	if !f.IsValid() || !f.CanInterface() {
		return ir.IRNull{}
	}
	return reflectValue(f)
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

func reflectValue(f reflect.Value) ir.IRValue {
	switch f.Kind() {
	case reflect.String:
		return ir.IRString(f.String())
	case reflect.Bool:
		return ir.IRBool(f.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return ir.IRInt(f.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := f.Uint()
		if u > 1<<63-1 {
			return ir.IRNull{}
		}
		return ir.IRInt(int64(u))
	case reflect.Pointer, reflect.Interface:
		if f.IsNil() {
			return ir.IRNull{}
		}
		return reflectValue(f.Elem())
	}
	v, err := ir.FromGo(f.Interface())
	if err != nil {
		return ir.IRNull{}
	}
	return v
}
