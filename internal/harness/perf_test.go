package harness

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleassert/internal/ir"
)

func TestPerfAggregator_Record(t *testing.T) {
	p := NewPerfAggregator()
	p.Record("perf-a", 2*time.Millisecond)
	p.Record("perf-b", time.Millisecond)
	p.Record("perf-a", 4*time.Millisecond)
	p.AfterMatchFired(ir.MatchEvent{Rule: "perf-a", Elapsed: 6 * time.Millisecond})

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, PerfStat{Rule: "perf-a", Count: 3, MinMs: 2, MaxMs: 6, AvgMs: 4}, stats[0])
	assert.Equal(t, "perf-b", stats[1].Rule)
	assert.Equal(t, 4, p.Total())

	st, ok := p.Stat("perf-b")
	require.True(t, ok)
	assert.Equal(t, 1.0, st.AvgMs)
}

func TestPerfAggregator_StatsIsCopy(t *testing.T) {
	p := NewPerfAggregator()
	p.Record("perf-copy", time.Millisecond)
	stats := p.Stats()
	stats[0].Count = 99

	st, _ := p.Stat("perf-copy")
	assert.Equal(t, 1, st.Count)
}

func TestPerfAggregator_Reset(t *testing.T) {
	p := NewPerfAggregator()
	p.Record("perf-reset", time.Millisecond)
	p.Reset()

	assert.Empty(t, p.Stats())
	assert.Zero(t, p.Total())
	_, ok := p.Stat("perf-reset")
	assert.False(t, ok)
}

func TestPerfAggregator_Metrics(t *testing.T) {
	p := NewPerfAggregator()
	before := testutil.ToFloat64(ruleFiringsTotal.WithLabelValues("perf-metrics"))

	p.Record("perf-metrics", time.Millisecond)
	p.Record("perf-metrics", time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(ruleFiringsTotal.WithLabelValues("perf-metrics")))
}

func TestHarness_PerformanceStatistic(t *testing.T) {
	logger, buf := bufferLogger()
	h := newTestHarness(t, []string{atomicRules}, WithLogger(logger))

	_, err := h.InsertAndFire(counter("AtomicInteger"))
	require.NoError(t, err)

	stats := h.PerfStats()
	require.Len(t, stats, 1)
	assert.Equal(t, PerfStat{Rule: "atomic int rule", Count: 1, MinMs: 1, MaxMs: 1, AvgMs: 1}, stats[0])

	h.PrintPerformanceStatistic()
	assert.Contains(t, buf.String(), "Performance Statistic, total activations 1:")
	assert.Contains(t, buf.String(), "atomic int rule - min: 1.00 avg: 1.00 max: 1.00 activations: 1")
}
