package fraud

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricVoteWeight     = "fraud_vote_weight"
	MetricBurstPenalties = "fraud_burst_penalties_total"
)

// Metrics contains Prometheus metrics for fraud scoring.
// All operations are thread-safe.
type Metrics struct {
	voteWeight     prometheus.Histogram
	burstPenalties prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		voteWeight: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricVoteWeight,
			Help:    "Distribution of fraud-adjusted vote weights",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
		}),
		burstPenalties: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBurstPenalties,
			Help: "Total number of votes penalized for burst activity",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveWeight records a computed vote weight.
func (m *Metrics) ObserveWeight(weight float64) {
	m.voteWeight.Observe(weight)
}

// IncBurstPenalty increments the burst penalty counter.
func (m *Metrics) IncBurstPenalty() {
	m.burstPenalties.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.voteWeight,
		m.burstPenalties,
	}
}
