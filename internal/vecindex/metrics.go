package vecindex

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricIndexedVectors  = "vecindex_vectors"
	MetricPendingEntries  = "vecindex_pending_entries"
	MetricQueriesTotal    = "vecindex_queries_total"
	MetricQueryDuration   = "vecindex_query_duration_seconds"
	MetricUpsertsTotal    = "vecindex_upserts_total"
	MetricUpsertFailures  = "vecindex_upsert_failures_total"
)

// Metrics contains Prometheus metrics for the vector index.
type Metrics struct {
	indexedVectors prometheus.GaugeFunc
	pendingEntries prometheus.GaugeFunc
	queriesTotal   prometheus.Counter
	queryDuration  prometheus.Histogram
	upsertsTotal   prometheus.Counter
	upsertFailures prometheus.Counter
}

// NewMetrics creates index metrics bound to the given index and tracker.
// The metrics are not registered; call Register.
func NewMetrics(index *Index, pending *PendingTracker) *Metrics {
	return &Metrics{
		indexedVectors: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: MetricIndexedVectors,
				Help: "Number of vectors currently held by the index",
			},
			func() float64 { return float64(index.TotalSize()) },
		),
		pendingEntries: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: MetricPendingEntries,
				Help: "Number of questions awaiting index reconciliation",
			},
			func() float64 { return float64(pending.Count()) },
		),
		queriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricQueriesTotal,
			Help: "Total nearest-neighbor queries served",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "Histogram of nearest-neighbor query duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		upsertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUpsertsTotal,
			Help: "Total vector upserts applied to the index",
		}),
		upsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricUpsertFailures,
			Help: "Total vector upserts rejected by the index",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.indexedVectors,
		m.pendingEntries,
		m.queriesTotal,
		m.queryDuration,
		m.upsertsTotal,
		m.upsertFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveQuery records a completed query and its duration in seconds.
func (m *Metrics) ObserveQuery(seconds float64) {
	m.queriesTotal.Inc()
	m.queryDuration.Observe(seconds)
}

// IncUpsert records an applied upsert.
func (m *Metrics) IncUpsert() {
	m.upsertsTotal.Inc()
}

// IncUpsertFailure records a rejected upsert.
func (m *Metrics) IncUpsertFailure() {
	m.upsertFailures.Inc()
}
