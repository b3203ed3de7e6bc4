package harness

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/ruleassert/internal/ir"
)

var (
	// ruleFiringsTotal counts firings observed by any harness.
	ruleFiringsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleassert",
		Subsystem: "rule",
		Name:      "firings_total",
		Help:      "Total rule firings observed by the harness",
	}, []string{"rule"})

	// ruleFiringDuration tracks activation creation to consequence end.
	ruleFiringDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ruleassert",
		Subsystem: "rule",
		Name:      "firing_duration_seconds",
		Help:      "Time from activation creation to the end of its consequence",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"rule"})
)

// PerfStat is the firing duration summary of one rule.
type PerfStat struct {
	Rule  string
	Count int
	MinMs float64
	MaxMs float64
	AvgMs float64
}

// PerfAggregator accumulates per-rule firing durations.
//
// PerfAggregator implements ir.MatchTimingListener.
type PerfAggregator struct {
	rules []string
	stats map[string]*PerfStat
}

// NewPerfAggregator creates an empty aggregator.
func NewPerfAggregator() *PerfAggregator {
	return &PerfAggregator{stats: make(map[string]*PerfStat)}
}

// Record adds one firing of rule that took elapsed.
func (p *PerfAggregator) Record(rule string, elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)

	st, ok := p.stats[rule]
	if !ok {
		st = &PerfStat{Rule: rule, MinMs: ms, MaxMs: ms}
		p.stats[rule] = st
		p.rules = append(p.rules, rule)
	}
	st.Count++
	st.MinMs = min(st.MinMs, ms)
	st.MaxMs = max(st.MaxMs, ms)
	st.AvgMs += (ms - st.AvgMs) / float64(st.Count)

	ruleFiringsTotal.WithLabelValues(rule).Inc()
	ruleFiringDuration.WithLabelValues(rule).Observe(elapsed.Seconds())
}

// AfterMatchFired implements ir.MatchTimingListener.
func (p *PerfAggregator) AfterMatchFired(ev ir.MatchEvent) {
	p.Record(ev.Rule, ev.Elapsed)
}

// Stats returns a copy of every rule's summary in first-record order.
func (p *PerfAggregator) Stats() []PerfStat {
	out := make([]PerfStat, len(p.rules))
	for i, r := range p.rules {
		out[i] = *p.stats[r]
	}
	return out
}

// Stat returns rule's summary.
func (p *PerfAggregator) Stat(rule string) (PerfStat, bool) {
	st, ok := p.stats[rule]
	if !ok {
		return PerfStat{}, false
	}
	return *st, true
}

// Total returns the number of recorded firings.
func (p *PerfAggregator) Total() int {
	total := 0
	for _, st := range p.stats {
		total += st.Count
	}
	return total
}

// Reset drops all statistics.
func (p *PerfAggregator) Reset() {
	p.rules = nil
	p.stats = make(map[string]*PerfStat)
}
