// Package stream provides metrics for contest update broadcasting.
package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricEventsSent      = "contest_events_sent_total"
	MetricSubscribers     = "contest_update_subscribers"
	MetricBroadcastErrors = "contest_broadcast_errors_total"
)

// Metrics contains Prometheus metrics for contest update broadcasting.
// All operations are thread-safe.
type Metrics struct {
	eventsSent      *prometheus.CounterVec
	subscribers     prometheus.Gauge
	broadcastErrors prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricEventsSent,
			Help: "Total number of contest update events delivered to subscribers",
		}, []string{"type"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricSubscribers,
			Help: "Current number of WebSocket subscribers across all contests",
		}),
		broadcastErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricBroadcastErrors,
			Help: "Total number of failed WebSocket event writes",
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

// IncEventsSent increments the delivered events counter for an event type.
func (m *Metrics) IncEventsSent(eventType string) {
	m.eventsSent.WithLabelValues(eventType).Inc()
}

// IncSubscribers increments the subscriber gauge.
func (m *Metrics) IncSubscribers() {
	m.subscribers.Inc()
}

// DecSubscribers decrements the subscriber gauge.
func (m *Metrics) DecSubscribers() {
	m.subscribers.Dec()
}

// IncBroadcastErrors increments the failed write counter.
func (m *Metrics) IncBroadcastErrors() {
	m.broadcastErrors.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.eventsSent,
		m.subscribers,
		m.broadcastErrors,
	}
}
