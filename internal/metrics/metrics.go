// Package metrics registers the prometheus collectors the engine and
// server dispatcher expose, grounded on the counter/gauge layout in the
// retrieval pack's dreamsxin-wal/metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registerer is the subset of prometheus.Registerer callers need; nil is
// accepted and treated as prometheus.DefaultRegisterer for library users
// who don't care about metrics isolation, the way the server binary
// registers against the default registry by default.
type Registerer = prometheus.Registerer

// EngineMetrics tracks the log-structured engine's internal activity:
// rotations, compactions, and segments reclaimed by compaction.
// LiveSegments is registered but the engine never sets it, so it reads 0.
type EngineMetrics struct {
	SegmentRotations  prometheus.Counter
	CompactionRuns    prometheus.Counter
	SegmentsReclaimed prometheus.Counter
	LiveSegments      prometheus.Gauge
}

// NewEngineMetrics registers engine metrics against reg (DefaultRegisterer
// if nil). Every KvStore.Open in a process calls this, so a second store
// opened against the same registry (common in tests, and in a binary that
// opens more than one engine) must reuse the already-registered collectors
// rather than panic, hence registerOrReuse instead of plain promauto.
func NewEngineMetrics(reg Registerer) *EngineMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &EngineMetrics{
		SegmentRotations: registerOrReuseCounter(reg, prometheus.CounterOpts{
			Name: "kvs_segment_rotations_total",
			Help: "Number of times the active segment was rotated.",
		}),
		CompactionRuns: registerOrReuseCounter(reg, prometheus.CounterOpts{
			Name: "kvs_compaction_runs_total",
			Help: "Number of compaction passes run.",
		}),
		SegmentsReclaimed: registerOrReuseCounter(reg, prometheus.CounterOpts{
			Name: "kvs_segments_reclaimed_total",
			Help: "Number of segment files deleted by compaction.",
		}),
		LiveSegments: registerOrReuseGauge(reg, prometheus.GaugeOpts{
			Name: "kvs_live_segments",
			Help: "Number of segment files currently on disk.",
		}),
	}
}

func registerOrReuseCounter(reg Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Counter)
		}
		panic(err)
	}
	return c
}

func registerOrReuseGauge(reg Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Gauge)
		}
		panic(err)
	}
	return g
}

func registerOrReuseCounterVec(reg Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(v); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return v
}

func registerOrReuseHistogram(reg Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(prometheus.Histogram)
		}
		panic(err)
	}
	return h
}

// ServerMetrics tracks request dispatch activity.
type ServerMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
}

// NewServerMetrics registers server metrics against reg (DefaultRegisterer
// if nil).
func NewServerMetrics(reg Registerer) *ServerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &ServerMetrics{
		RequestsTotal: registerOrReuseCounterVec(reg, prometheus.CounterOpts{
			Name: "kvs_requests_total",
			Help: "Number of requests dispatched, by command kind and outcome.",
		}, []string{"command", "outcome"}),
		RequestDuration: registerOrReuseHistogram(reg, prometheus.HistogramOpts{
			Name:    "kvs_request_duration_seconds",
			Help:    "Time to decode, execute, and respond to one request.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
