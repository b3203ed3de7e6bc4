package harness

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ruleassert/internal/ir"
)

// DefaultAwaitTicks is the AwaitFor budget: one simulated day of seconds.
const DefaultAwaitTicks = 24 * 60 * 60

// Harness drives one session and asserts on its firings and facts.
//
// Every firing is counted from the moment the harness is created, so
// cumulative assertions (AssertAllActivations) see the whole test while
// incremental ones (AssertActivated) see only what fired since the previous
// incremental check.
//
// Not safe for concurrent use.
type Harness struct {
	session   Session
	clock     *clockController
	registry  *Registry
	history   *FactHistory
	ignore    *IgnoreSet
	perf      *PerfAggregator
	logger    *slog.Logger
	listeners []any

	// baseline for AssertActivated; await never moves it
	baseline *ActivationCount
	closed   bool
}

// New creates a harness over session and subscribes it to session events.
// A nil session creates a detached harness whose session operations
// return ErrNoSession.
func New(session Session, opts ...Option) (*Harness, error) {
	o := buildOptions(opts)

	ignore, err := NewIgnoreSet(o.ignore...)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		session:  session,
		clock:    &clockController{session: session},
		registry: NewRegistry(),
		history:  NewFactHistory(o.keepHistory),
		ignore:   ignore,
		perf:     NewPerfAggregator(),
		logger:   o.logger,
		baseline: NewActivationCount(),
	}
	if session == nil {
		return h, nil
	}

	h.listeners = append([]any{
		h.registry,
		h.history,
		h.perf,
		&eventLogger{logger: o.logger, logFacts: o.logFacts},
	}, o.listeners...)
	for _, l := range h.listeners {
		session.AddListener(l)
	}
	return h, nil
}

func (h *Harness) live() error {
	if h.session == nil {
		return ErrNoSession
	}
	return nil
}

// Session returns the driven session, nil for a detached harness.
func (h *Harness) Session() Session {
	return h.session
}

// Insert inserts facts in order and returns their handles.
func (h *Harness) Insert(facts ...any) ([]ir.FactHandle, error) {
	if err := h.live(); err != nil {
		return nil, err
	}
	handles := make([]ir.FactHandle, 0, len(facts))
	for _, f := range facts {
		handle, err := h.session.Insert(f)
		if err != nil {
			return handles, fmt.Errorf("insert %s: %w", ir.TypeOf(f), err)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// FireAllRules fires every eligible activation.
func (h *Harness) FireAllRules() (int, error) {
	if err := h.live(); err != nil {
		return 0, err
	}
	return h.session.FireAllRules()
}

// InsertAndFire inserts facts, then fires once.
func (h *Harness) InsertAndFire(facts ...any) ([]ir.FactHandle, error) {
	handles, err := h.Insert(facts...)
	if err != nil {
		return handles, err
	}
	_, err = h.FireAllRules()
	return handles, err
}

// AdvanceTime moves the clock by amount of unit, truncated to whole
// seconds, firing after every second.
func (h *Harness) AdvanceTime(amount int64, unit time.Duration) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.clock.advance(amount, unit)
}

// AdvanceTicks moves the clock ticks times by one unit, firing after every
// tick.
func (h *Harness) AdvanceTicks(unit time.Duration, ticks int64) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.clock.advanceTicks(unit, ticks)
}

// CurrentTime returns the session clock in milliseconds.
func (h *Harness) CurrentTime() int64 {
	if h.session == nil {
		return 0
	}
	return h.session.CurrentTime()
}

// Activations returns the counts of every firing so far.
func (h *Harness) Activations() *ActivationCount {
	return h.registry.Counts()
}

// AssertAllActivations checks that exactly rules fired since the harness
// was created, each at least once.
func (h *Harness) AssertAllActivations(rules ...string) error {
	return h.AssertAllActivationCounts(AnyCount(rules...)...)
}

// AssertAllActivationCounts is AssertAllActivations with exact counts.
func (h *Harness) AssertAllActivationCounts(expected ...Expectation) error {
	return CompareActivations(expected, h.registry.Counts(), h.ignore.IsEligible)
}

// AssertActivated checks that exactly rules fired since the previous
// AssertActivated or AssertActivatedCounts call.
func (h *Harness) AssertActivated(rules ...string) error {
	return h.AssertActivatedCounts(AnyCount(rules...)...)
}

// AssertActivatedCounts is AssertActivated with exact counts.
func (h *Harness) AssertActivatedCounts(expected ...Expectation) error {
	current := h.registry.Counts()
	delta := current.Delta(h.baseline)
	h.baseline = current
	return CompareActivations(expected, delta, h.ignore.IsEligible)
}

// AwaitFor ticks one second at a time, for at most DefaultAwaitTicks, until
// every rule has fired since the call. With no rules it waits for any
// firing.
func (h *Harness) AwaitFor(rules ...string) error {
	return h.AwaitForTicks(time.Second, DefaultAwaitTicks, rules...)
}

// AwaitForAny waits for any firing within DefaultAwaitTicks seconds.
func (h *Harness) AwaitForAny() error {
	return h.AwaitForTicks(time.Second, DefaultAwaitTicks)
}

// AwaitForTicks ticks in unit, for at most maxTicks, until every rule has
// fired since the call, or any rule when none are given.
func (h *Harness) AwaitForTicks(unit time.Duration, maxTicks int64, rules ...string) error {
	if err := h.live(); err != nil {
		return err
	}

	baseline := h.registry.Counts()
	satisfied := func(delta *ActivationCount) bool {
		if len(rules) == 0 {
			return delta.Len() > 0
		}
		for _, r := range rules {
			if !delta.Has(r) {
				return false
			}
		}
		return true
	}

	delta := NewActivationCount()
	for i := int64(0); i < maxTicks; i++ {
		if err := h.clock.tick(unit); err != nil {
			return err
		}
		delta = h.registry.Counts().Delta(baseline)
		if satisfied(delta) {
			return nil
		}
	}

	var missing []string
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if !delta.Has(r) && !seen[r] {
			missing = append(missing, r)
		}
		seen[r] = true
	}
	return &AssertionError{Type: TypeAwait, Missing: missing}
}

// AssertNoScheduledActivations fires everything that could ever fire given
// the current facts, then rewinds the clock, and fails if an eligible rule
// fired.
func (h *Harness) AssertNoScheduledActivations() error {
	if err := h.live(); err != nil {
		return err
	}
	baseline := h.registry.Counts()
	if err := h.clock.triggerAllScheduled(); err != nil {
		return err
	}
	delta := h.registry.Counts().Delta(baseline).Filter(h.ignore.IsEligible)
	if delta.Len() > 0 {
		return &AssertionError{Type: TypeScheduled, Unexpected: delta.Rules()}
	}
	return nil
}

// TriggerAllScheduled fires everything that could ever fire given the
// current facts, then rewinds the clock.
func (h *Harness) TriggerAllScheduled() error {
	if err := h.live(); err != nil {
		return err
	}
	return h.clock.triggerAllScheduled()
}

// IgnoreActivations adds ignore patterns for the rest of the test.
func (h *Harness) IgnoreActivations(patterns ...string) error {
	return h.ignore.Add(patterns...)
}

// SetGlobal sets a session global.
func (h *Harness) SetGlobal(name string, value any) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.session.SetGlobal(name, value)
}

// AssertExist checks that every fact is live.
func (h *Harness) AssertExist(facts ...any) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := h.checkKnown(facts); err != nil {
		return err
	}
	var removed []string
	for _, f := range facts {
		if !h.isLive(f) {
			removed = append(removed, ir.Render(f))
		}
	}
	if len(removed) > 0 {
		return factsError(removed, "Object was removed from the session:", "Objects were removed from the session:")
	}
	return nil
}

// AssertRetracted checks that no fact is live.
func (h *Harness) AssertRetracted(facts ...any) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := h.checkKnown(facts); err != nil {
		return err
	}
	var present []string
	for _, f := range facts {
		if h.isLive(f) {
			present = append(present, ir.Render(f))
		}
	}
	if len(present) > 0 {
		return factsError(present, "Object was not retracted from the session:", "Objects were not retracted from the session:")
	}
	return nil
}

// AssertAllRetracted checks that the session holds no facts.
func (h *Harness) AssertAllRetracted() error {
	if err := h.live(); err != nil {
		return err
	}
	live := h.history.Ordered(h.session.Facts())
	if len(live) == 0 {
		return nil
	}
	rendered := make([]string, len(live))
	for i, e := range live {
		rendered[i] = ir.Render(e.Fact)
	}
	return factsError(rendered, "Object was not retracted from the session:", "Objects were not retracted from the session:")
}

// AssertFactsCount checks the number of live facts.
func (h *Harness) AssertFactsCount(n int64) error {
	if err := h.live(); err != nil {
		return err
	}
	if got := h.session.FactCount(); got != n {
		return &AssertionError{
			Type:     TypeFacts,
			Message:  fmt.Sprintf("expected %d facts but found %d", n, got),
			Expected: int(n),
			Actual:   int(got),
		}
	}
	return nil
}

// checkKnown fails for facts the history never saw. It accepts everything
// when the history is off.
func (h *Harness) checkKnown(facts []any) error {
	if !h.history.Enabled() {
		return nil
	}
	var unknown []string
	for _, f := range facts {
		if !h.history.IsKnown(f) {
			unknown = append(unknown, ir.Render(f))
		}
	}
	if len(unknown) > 0 {
		err := factsError(unknown, "Object was never inserted into the session:", "Objects were never inserted into the session:")
		err.Type = TypeUnknownFact
		return err
	}
	return nil
}

func (h *Harness) isLive(fact any) bool {
	if !ir.Comparable(fact) {
		return false
	}
	for _, e := range h.session.Facts() {
		if e.Fact == fact {
			return true
		}
	}
	return false
}

func factsError(rendered []string, singular, plural string) *AssertionError {
	msg := plural
	if len(rendered) == 1 {
		msg = singular
	}
	return &AssertionError{Type: TypeFacts, Message: msg, Facts: rendered}
}

// Objects returns the live facts accepted by filter, in insertion order.
// A nil filter accepts every fact.
func (h *Harness) Objects(filter func(any) bool) []any {
	if h.session == nil {
		return nil
	}
	var out []any
	for _, e := range h.session.Facts() {
		if filter == nil || filter(e.Fact) {
			out = append(out, e.Fact)
		}
	}
	return out
}

// Object returns the only live fact accepted by filter.
func (h *Harness) Object(filter func(any) bool) (any, error) {
	found := h.Objects(filter)
	if len(found) != 1 {
		return nil, lookupError(len(found), found)
	}
	return found[0], nil
}

// ObjectsOf returns the live facts of Go type T.
func ObjectsOf[T any](h *Harness) []T {
	var out []T
	for _, f := range h.Objects(nil) {
		if v, ok := f.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// ObjectOf returns the only live fact of Go type T.
func ObjectOf[T any](h *Harness) (T, error) {
	found := ObjectsOf[T](h)
	if len(found) != 1 {
		var zero T
		facts := make([]any, len(found))
		for i, f := range found {
			facts[i] = f
		}
		return zero, lookupError(len(found), facts)
	}
	return found[0], nil
}

// FactsOfType returns the live *ir.Fact facts with the given type name.
func (h *Harness) FactsOfType(typ string) []*ir.Fact {
	var out []*ir.Fact
	for _, f := range ObjectsOf[*ir.Fact](h) {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func lookupError(n int, found []any) *AssertionError {
	rendered := make([]string, len(found))
	for i, f := range found {
		rendered[i] = ir.Render(f)
	}
	return &AssertionError{
		Type:    TypeLookup,
		Message: fmt.Sprintf("expected exactly one matching fact but found %d", n),
		Facts:   rendered,
		Actual:  n,
	}
}

// PrintFacts logs the live facts in insertion order. Nothing is logged
// when the fact history is off.
func (h *Harness) PrintFacts() {
	if h.session == nil || !h.history.Enabled() {
		return
	}
	live := h.history.Ordered(h.session.Facts())
	h.logger.Info(fmt.Sprintf("Facts (%d):", len(live)))
	for _, e := range live {
		h.logger.Info(ir.Render(e.Fact), "handle", int64(e.Handle))
	}
}

// PerfStats returns per-rule firing durations.
func (h *Harness) PerfStats() []PerfStat {
	return h.perf.Stats()
}

// PrintPerformanceStatistic logs per-rule firing durations.
func (h *Harness) PrintPerformanceStatistic() {
	h.logger.Info(fmt.Sprintf("Performance Statistic, total activations %d:", h.perf.Total()))
	for _, st := range h.perf.Stats() {
		h.logger.Info(fmt.Sprintf("%s - min: %.2f avg: %.2f max: %.2f activations: %d",
			st.Rule, st.MinMs, st.AvgMs, st.MaxMs, st.Count))
	}
}

// Close unsubscribes from and disposes the session and drops all state.
// Close is idempotent.
func (h *Harness) Close() {
	if h.closed {
		return
	}
	h.closed = true
	if h.session != nil {
		for _, l := range h.listeners {
			h.session.RemoveListener(l)
		}
		h.session.Dispose()
	}
	h.perf.Reset()
	h.history.Clear()
	h.registry.Reset()
	h.baseline = NewActivationCount()
}

// eventLogger logs session events against the pseudo clock.
type eventLogger struct {
	logger   *slog.Logger
	logFacts bool
}

func (l *eventLogger) describe(fact any) string {
	if l.logFacts {
		return ir.Render(fact)
	}
	return ir.TypeOf(fact)
}

func (l *eventLogger) BeforeMatchFired(ev ir.MatchEvent) {
	tuple := make([]string, len(ev.Tuple))
	for i, f := range ev.Tuple {
		tuple[i] = l.describe(f)
	}
	l.logger.Info("rule fired",
		"clock", formatClock(ev.Clock),
		"rule", ev.Rule,
		"tuple", tuple,
	)
}

func (l *eventLogger) FactInserted(ev ir.FactEvent) {
	l.logFact("fact inserted", ev, ev.Fact)
}

func (l *eventLogger) FactUpdated(ev ir.FactEvent) {
	attrs := []any{"clock", formatClock(ev.Clock), "fact", l.describe(ev.Fact)}
	if l.logFacts {
		attrs = append(attrs, "old", l.describe(ev.Old))
	}
	if ev.Rule != "" {
		attrs = append(attrs, "rule", ev.Rule)
	}
	l.logger.Info("fact updated", attrs...)
}

func (l *eventLogger) FactDeleted(ev ir.FactEvent) {
	l.logFact("fact deleted", ev, ev.Old)
}

func (l *eventLogger) logFact(msg string, ev ir.FactEvent, fact any) {
	attrs := []any{"clock", formatClock(ev.Clock), "fact", l.describe(fact)}
	if ev.Rule != "" {
		attrs = append(attrs, "rule", ev.Rule)
	}
	l.logger.Info(msg, attrs...)
}
