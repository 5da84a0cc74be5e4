// Package metrics provides optional performance counters for the
// evaluation core (§2 row 9, "Timing hooks (optional)"). Callers that
// don't care about metrics never need to touch this package: every
// exported hook accepts a nil *Counters and no-ops.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters groups the Prometheus collectors the driver updates. Create one
// per process (not per evaluation) and register it with a registry of your
// choosing; Collectors() returns everything that needs registering.
type Counters struct {
	Rounds       prometheus.Counter
	RoundLatency prometheus.Histogram
	BlocksRun    *prometheus.CounterVec
	Divergences  prometheus.Counter
	CommitSize   prometheus.Histogram
}

// New builds a fresh, unregistered set of counters.
func New() *Counters {
	return &Counters{
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eve",
			Subsystem: "fixpoint",
			Name:      "rounds_total",
			Help:      "Number of fixpoint rounds executed across all evaluations.",
		}),
		RoundLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eve",
			Subsystem: "fixpoint",
			Name:      "round_duration_seconds",
			Help:      "Wall-clock duration of a single fixpoint round.",
			Buckets:   prometheus.DefBuckets,
		}),
		BlocksRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eve",
			Subsystem: "fixpoint",
			Name:      "blocks_executed_total",
			Help:      "Number of block executions, labeled by block id.",
		}, []string{"block_id"}),
		Divergences: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eve",
			Subsystem: "fixpoint",
			Name:      "divergences_total",
			Help:      "Number of fixpoints that hit MAX_ROUNDS without quiescing.",
		}),
		CommitSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eve",
			Subsystem: "changeset",
			Name:      "commit_delta_size",
			Help:      "Number of entries in a committed delta.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
	}
}

// Collectors returns every collector for registration with a
// prometheus.Registerer.
func (c *Counters) Collectors() []prometheus.Collector {
	if c == nil {
		return nil
	}
	return []prometheus.Collector{c.Rounds, c.RoundLatency, c.BlocksRun, c.Divergences, c.CommitSize}
}

// RoundTimer times one fixpoint round and records it on Rounds/RoundLatency
// when Stop is called. Safe to use with a nil *Counters.
type RoundTimer struct {
	counters *Counters
	start    time.Time
}

// StartRound begins timing a round. c may be nil.
func StartRound(c *Counters) *RoundTimer {
	return &RoundTimer{counters: c, start: time.Now()}
}

// Stop records the elapsed round duration.
func (t *RoundTimer) Stop() {
	if t == nil || t.counters == nil {
		return
	}
	t.counters.Rounds.Inc()
	t.counters.RoundLatency.Observe(time.Since(t.start).Seconds())
}

// RecordBlockRun increments the per-block execution counter. c may be nil.
func RecordBlockRun(c *Counters, blockID string) {
	if c == nil {
		return
	}
	c.BlocksRun.WithLabelValues(blockID).Inc()
}

// RecordDivergence increments the divergence counter. c may be nil.
func RecordDivergence(c *Counters) {
	if c == nil {
		return
	}
	c.Divergences.Inc()
}

// RecordCommit observes the size of a committed delta. c may be nil.
func RecordCommit(c *Counters, size int) {
	if c == nil {
		return
	}
	c.CommitSize.Observe(float64(size))
}
