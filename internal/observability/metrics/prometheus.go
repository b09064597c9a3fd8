// Package metrics provides Prometheus metrics for the adherence engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	PrescriptionsCreated prometheus.Counter
	ImportsProcessed     prometheus.Counter
	DosesGenerated       prometheus.Counter
	DoseActions          *prometheus.CounterVec
	DosesSweptMissed     prometheus.Counter
	NudgesQueued         prometheus.Counter
	NudgesDelivered      prometheus.Counter
	NudgesFailed         prometheus.Counter
	RequestDuration      prometheus.Histogram
	OutboxPending        prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		PrescriptionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prescriptions_created_total",
			Help: "Total prescriptions created",
		}),
		ImportsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handover_imports_total",
			Help: "Total clinic handover imports processed",
		}),
		DosesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doses_generated_total",
			Help: "Total scheduled doses generated",
		}),
		DoseActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dose_actions_total",
			Help: "Total patient dose actions by resulting status",
		}, []string{"status"}),
		DosesSweptMissed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doses_swept_missed_total",
			Help: "Total pending doses marked missed by the grace sweep",
		}),
		NudgesQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nudges_queued_total",
			Help: "Total nudges queued for delivery",
		}),
		NudgesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nudges_delivered_total",
			Help: "Total nudges delivered",
		}),
		NudgesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nudges_failed_total",
			Help: "Total nudge deliveries that exhausted retries",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.PrescriptionsCreated,
		m.ImportsProcessed,
		m.DosesGenerated,
		m.DoseActions,
		m.DosesSweptMissed,
		m.NudgesQueued,
		m.NudgesDelivered,
		m.NudgesFailed,
		m.RequestDuration,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
