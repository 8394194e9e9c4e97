package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics records webhook deliveries and reconciliation runs.
type LifecycleMetrics struct {
	webhookEvents    *prometheus.CounterVec
	reconcileRows    *prometheus.CounterVec
	reconcileRuns    prometheus.Counter
	reconcileLatency prometheus.Histogram
}

// NewLifecycleMetrics registers the lifecycle instruments on the provided
// registerer. A nil registerer yields a no-op recorder, which tests use.
func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Provider webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	reconcileRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_rows_total",
		Help: "Rows touched by the reconciliation sweep by result.",
	}, []string{"result"})
	reconcileRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_runs_total",
		Help: "Reconciliation sweep invocations.",
	})
	reconcileLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of reconciliation sweeps in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(webhookEvents, reconcileRows, reconcileRuns, reconcileLatency)
	return &LifecycleMetrics{
		webhookEvents:    webhookEvents,
		reconcileRows:    reconcileRows,
		reconcileRuns:    reconcileRuns,
		reconcileLatency: reconcileLatency,
	}
}

// ObserveWebhookEvent counts one delivery of the named event type.
func (m *LifecycleMetrics) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveReconcileRow counts one row processed by the sweep.
func (m *LifecycleMetrics) ObserveReconcileRow(result string) {
	if m == nil || m.reconcileRows == nil {
		return
	}
	m.reconcileRows.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveReconcileRun records a completed sweep and its duration.
func (m *LifecycleMetrics) ObserveReconcileRun(duration time.Duration) {
	if m == nil || m.reconcileRuns == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.reconcileLatency.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
