package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricActionsTotal = "moderation_actions_total"
	MetricReportsTotal = "reports_filed_total"
)

// Action label values.
const (
	ActionFlag          = "flag"
	ActionApprove       = "approve"
	ActionRemove        = "remove"
	ActionMerge         = "merge"
	ActionUnmerge       = "unmerge"
	ActionResolveReport = "resolve_report"
)

// Metrics contains Prometheus metrics for moderation activity.
type Metrics struct {
	actionsTotal *prometheus.CounterVec
	reportsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors. They are not registered; call Register.
func NewMetrics() *Metrics {
	return &Metrics{
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricActionsTotal,
				Help: "Total moderator actions by type",
			},
			[]string{"action"},
		),
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReportsTotal,
				Help: "Total user reports filed by target kind",
			},
			[]string{"kind"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.actionsTotal, m.reportsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncAction records a completed moderator action.
func (m *Metrics) IncAction(action string) {
	m.actionsTotal.WithLabelValues(action).Inc()
}

// IncReport records a filed report.
func (m *Metrics) IncReport(kind string) {
	m.reportsTotal.WithLabelValues(kind).Inc()
}
