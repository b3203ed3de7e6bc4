package engine

import (
	"fmt"
	"time"

	"github.com/roach88/ruleassert/internal/ir"
)

// Session is one working memory over a RuleBase.
//
// Not safe for concurrent use.
type Session struct {
	id    string
	base  *RuleBase
	mode  string
	clock *PseudoClock

	facts    []*factEntry // live facts, insertion order
	byHandle map[ir.FactHandle]*factEntry
	lastID   ir.FactHandle
	globals  map[string]any

	pending   map[string]*activation
	firing    *activation
	listeners listenerSet
	disposed  bool
}

func newSession(rb *RuleBase, id, mode string) *Session {
	return &Session{
		id:       id,
		base:     rb,
		mode:     mode,
		clock:    NewPseudoClock(),
		byHandle: make(map[ir.FactHandle]*factEntry),
		globals:  make(map[string]any),
		pending:  make(map[string]*activation),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Mode returns the event processing mode.
func (s *Session) Mode() string {
	return s.mode
}

// RuleBase returns the rule base the session was created from.
func (s *Session) RuleBase() *RuleBase {
	return s.base
}

// Insert adds a fact to working memory and returns its handle.
//
// Inserting a fact that is already live (same pointer, or == for value
// facts) returns the existing handle without an event. Facts must be
// comparable with ==; maps, slices and funcs are rejected.
func (s *Session) Insert(fact any) (ir.FactHandle, error) {
	if s.disposed {
		return 0, newDisposedError(s.id)
	}
	if err := s.checkFact(fact); err != nil {
		return 0, err
	}
	if e := s.lookup(fact); e != nil {
		return e.handle, nil
	}

	e := s.insert(fact, "")
	s.refresh()
	return e.handle, nil
}

// Delete removes the fact with the given handle from working memory.
func (s *Session) Delete(handle ir.FactHandle) error {
	if s.disposed {
		return newDisposedError(s.id)
	}
	e, ok := s.byHandle[handle]
	if !ok {
		return &RuntimeError{
			Code:      ErrCodeInvalidFact,
			Message:   fmt.Sprintf("no live fact with handle %d", handle),
			SessionID: s.id,
		}
	}
	s.delete(e, "")
	s.refresh()
	return nil
}

// Handle returns the handle of a live fact.
func (s *Session) Handle(fact any) (ir.FactHandle, bool) {
	if !ir.Comparable(fact) {
		return 0, false
	}
	if e := s.lookup(fact); e != nil {
		return e.handle, true
	}
	return 0, false
}

// FireAllRules fires eligible activations until none remain and returns
// how many fired. Each call may fire at most the rule base's max firings;
// going over returns *FiringsExceededError.
func (s *Session) FireAllRules() (int, error) {
	if s.disposed {
		return 0, newDisposedError(s.id)
	}

	quota := NewFiringQuota(s.base.maxFirings)
	fired := 0
	for {
		a := s.nextActivation()
		if a == nil {
			return fired, nil
		}
		if err := quota.Check(s.id, a.rule.Name); err != nil {
			s.base.logger.Error("max firings quota exceeded",
				"session", s.id,
				"rule", a.rule.Name,
				"limit", quota.MaxFirings(),
			)
			return fired, err
		}
		fired++
		if err := s.fire(a); err != nil {
			return fired, err
		}
	}
}

func (s *Session) fire(a *activation) error {
	delete(s.pending, a.key)
	s.base.refraction.Record(s.id, a.key)

	ev := a.event(s.clock.Now())
	s.base.logger.Debug("rule fired",
		"session", s.id,
		"rule", a.rule.Name,
		"handles", ev.Handles,
		"clock", ev.Clock,
	)
	s.listeners.fireBeforeMatch(ev)

	s.firing = a
	err := s.runConsequence(a)
	s.firing = nil

	ev.Elapsed = s.base.now().Sub(a.created)
	s.listeners.fireAfterMatch(ev)
	return err
}

func (s *Session) runConsequence(a *activation) error {
	bound := a.bindings()
	rule := a.rule.Name

	for i, act := range a.rule.Then {
		switch act.Kind {
		case ir.ActionInsert:
			fields := make(ir.IRObject, len(act.Fields))
			for k, op := range act.Fields {
				fields[k] = operandValue(op, bound)
			}
			s.insert(&ir.Fact{Type: act.Type, Fields: fields}, rule)

		case ir.ActionRetract:
			e, err := s.liveBinding(bound, act, rule, i)
			if err != nil {
				return err
			}
			s.delete(e, rule)

		case ir.ActionModify:
			e, err := s.liveBinding(bound, act, rule, i)
			if err != nil {
				return err
			}
			f, err := s.mutableFact(e, rule, i)
			if err != nil {
				return err
			}
			values := make(ir.IRObject, len(act.Fields))
			for k, op := range act.Fields {
				values[k] = operandValue(op, bound)
			}
			old := f.Clone()
			if f.Fields == nil {
				f.Fields = make(ir.IRObject, len(values))
			}
			for k, v := range values {
				f.Fields[k] = v
			}
			s.update(e, old, rule)

		case ir.ActionIncrement:
			e, err := s.liveBinding(bound, act, rule, i)
			if err != nil {
				return err
			}
			f, err := s.mutableFact(e, rule, i)
			if err != nil {
				return err
			}
			cur, ok := f.Fields[act.Field].(ir.IRInt)
			if !ok {
				return newConsequenceError(s.id, rule,
					"then[%d]: field %q of %s is %s, not int", i, act.Field, f.Type, ir.KindOf(f.Fields[act.Field]))
			}
			old := f.Clone()
			f.Fields[act.Field] = cur + ir.IRInt(act.By)
			s.update(e, old, rule)

		default:
			return newConsequenceError(s.id, rule, "then[%d]: unknown action %q", i, act.Kind)
		}
		s.refresh()
	}
	return nil
}

func (s *Session) liveBinding(bound map[string]*factEntry, act ir.Action, rule string, i int) (*factEntry, error) {
	e, ok := bound[act.Target]
	if !ok {
		return nil, newConsequenceError(s.id, rule, "then[%d]: %q is not bound", i, act.Target)
	}
	if s.byHandle[e.handle] != e {
		return nil, newConsequenceError(s.id, rule,
			"then[%d]: fact bound to %q is no longer in working memory", i, act.Target)
	}
	return e, nil
}

func (s *Session) mutableFact(e *factEntry, rule string, i int) (*ir.Fact, error) {
	f, ok := e.fact.(*ir.Fact)
	if !ok {
		return nil, newConsequenceError(s.id, rule, "then[%d]: cannot change %T, only *ir.Fact", i, e.fact)
	}
	return f, nil
}

func (s *Session) checkFact(fact any) error {
	if !ir.Comparable(fact) {
		return &RuntimeError{
			Code:      ErrCodeInvalidFact,
			Message:   fmt.Sprintf("fact of type %T is not comparable", fact),
			SessionID: s.id,
		}
	}
	if f, ok := fact.(*ir.Fact); ok && (f == nil || f.Type == "") {
		return &RuntimeError{
			Code:      ErrCodeInvalidFact,
			Message:   "fact has no type",
			SessionID: s.id,
		}
	}
	return nil
}

func (s *Session) lookup(fact any) *factEntry {
	for _, e := range s.facts {
		if e.fact == fact {
			return e
		}
	}
	return nil
}

func (s *Session) insert(fact any, rule string) *factEntry {
	s.lastID++
	e := &factEntry{handle: s.lastID, fact: fact, typ: ir.TypeOf(fact)}
	s.facts = append(s.facts, e)
	s.byHandle[e.handle] = e

	s.listeners.fireInserted(ir.FactEvent{
		Handle: e.handle,
		Fact:   fact,
		Rule:   rule,
		Clock:  s.clock.Now(),
	})
	return e
}

func (s *Session) update(e *factEntry, old any, rule string) {
	e.version++
	s.listeners.fireUpdated(ir.FactEvent{
		Handle: e.handle,
		Fact:   e.fact,
		Old:    old,
		Rule:   rule,
		Clock:  s.clock.Now(),
	})
}

func (s *Session) delete(e *factEntry, rule string) {
	delete(s.byHandle, e.handle)
	for i, x := range s.facts {
		if x == e {
			s.facts = append(s.facts[:i], s.facts[i+1:]...)
			break
		}
	}

	s.listeners.fireDeleted(ir.FactEvent{
		Handle: e.handle,
		Old:    e.fact,
		Rule:   rule,
		Clock:  s.clock.Now(),
	})
}

// Facts returns the live facts in insertion order.
func (s *Session) Facts() []ir.FactEntry {
	out := make([]ir.FactEntry, len(s.facts))
	for i, e := range s.facts {
		out[i] = ir.FactEntry{Handle: e.handle, Fact: e.fact}
	}
	return out
}

// FactCount returns the number of live facts.
func (s *Session) FactCount() int64 {
	return int64(len(s.facts))
}

// Objects returns the live facts accepted by filter, in insertion order.
// A nil filter accepts everything.
func (s *Session) Objects(filter func(any) bool) []any {
	var out []any
	for _, e := range s.facts {
		if filter == nil || filter(e.fact) {
			out = append(out, e.fact)
		}
	}
	return out
}

// SetGlobal stores a named global value.
func (s *Session) SetGlobal(name string, value any) error {
	if s.disposed {
		return newDisposedError(s.id)
	}
	if name == "" {
		return &RuntimeError{
			Code:      ErrCodeInvalidProperty,
			Message:   "global name is required",
			SessionID: s.id,
		}
	}
	s.globals[name] = value
	return nil
}

// Global returns a named global value.
func (s *Session) Global(name string) (any, bool) {
	v, ok := s.globals[name]
	return v, ok
}

// AddListener subscribes l to every event capability it implements.
func (s *Session) AddListener(l any) {
	s.listeners.add(l)
}

// RemoveListener unsubscribes l from every capability.
func (s *Session) RemoveListener(l any) {
	s.listeners.remove(l)
}

// AdvanceTime moves the pseudo clock. Activations are not fired until the
// next FireAllRules.
func (s *Session) AdvanceTime(amount int64, unit time.Duration) {
	s.clock.Advance(amount, unit)
}

// CurrentTime returns the pseudo clock in milliseconds.
func (s *Session) CurrentTime() int64 {
	return s.clock.Now()
}

// PendingActivations returns the number of scheduled activations,
// eligible or not.
func (s *Session) PendingActivations() int {
	return len(s.pending)
}

// Dispose releases working memory and listeners. Later calls to Insert,
// Delete, FireAllRules and SetGlobal fail. Dispose is idempotent.
func (s *Session) Dispose() {
	if s.disposed {
		return
	}
	s.disposed = true
	s.base.refraction.Clear(s.id)
	s.facts = nil
	s.byHandle = nil
	s.pending = nil
	s.globals = nil
	s.listeners = listenerSet{}
	s.base.logger.Debug("session disposed", "session", s.id)
}
