package dedup

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricChecksTotal   = "dedup_checks_total"
	MetricFailOpenTotal = "dedup_fail_open_total"
	MetricQueryDuration = "dedup_query_duration_seconds"
)

// Verdict label values.
const (
	VerdictDuplicate = "duplicate"
	VerdictUnique    = "unique"
)

// Metrics contains Prometheus metrics for duplicate checks.
type Metrics struct {
	checksTotal   *prometheus.CounterVec
	failOpenTotal prometheus.Counter
	queryDuration prometheus.Histogram
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricChecksTotal,
				Help: "Total duplicate checks by verdict",
			},
			[]string{"verdict"},
		),
		failOpenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFailOpenTotal,
			Help: "Total checks that failed open because embedding or index was unavailable",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "Histogram of nearest-neighbor lookup duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.checksTotal, m.failOpenTotal, m.queryDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncCheck records a completed check.
func (m *Metrics) IncCheck(duplicate bool) {
	verdict := VerdictUnique
	if duplicate {
		verdict = VerdictDuplicate
	}
	m.checksTotal.WithLabelValues(verdict).Inc()
}

// IncFailOpen records a check that proceeded without dedup.
func (m *Metrics) IncFailOpen() {
	m.failOpenTotal.Inc()
}

// ObserveQuery records a nearest-neighbor lookup duration in seconds.
func (m *Metrics) ObserveQuery(seconds float64) {
	m.queryDuration.Observe(seconds)
}
