package vote

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricCastsTotal      = "votes_cast_total"
	MetricCASRetriesTotal = "vote_cas_retries_total"
	MetricConflictsTotal  = "vote_conflicts_total"
)

// Direction label values.
const (
	DirectionUp      = "up"
	DirectionDown    = "down"
	DirectionRetract = "retract"
)

// Metrics contains Prometheus metrics for the vote ledger.
type Metrics struct {
	castsTotal     *prometheus.CounterVec
	casRetriesTotal prometheus.Counter
	conflictsTotal prometheus.Counter
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		castsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCastsTotal,
				Help: "Total successful vote casts by direction",
			},
			[]string{"direction"},
		),
		casRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCASRetriesTotal,
			Help: "Total lost counter swaps that were retried",
		}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricConflictsTotal,
			Help: "Total casts that exhausted their counter-swap retries",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.castsTotal, m.casRetriesTotal, m.conflictsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncCast records a successful cast.
func (m *Metrics) IncCast(value int) {
	direction := DirectionRetract
	switch value {
	case ValueUp:
		direction = DirectionUp
	case ValueDown:
		direction = DirectionDown
	}
	m.castsTotal.WithLabelValues(direction).Inc()
}

// IncCASRetry records a retried counter swap.
func (m *Metrics) IncCASRetry() {
	m.casRetriesTotal.Inc()
}

// IncConflict records a cast that surfaced a conflict.
func (m *Metrics) IncConflict() {
	m.conflictsTotal.Inc()
}
