// Package metrics exposes Prometheus counters for tool invocations and the
// retry pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vibeteam/vibeteam-mcp/internal/retry"
)

// Metrics holds the collectors registered for one server instance.
type Metrics struct {
	// Invocations tracks completed tool calls per tool and outcome
	Invocations *prometheus.CounterVec

	// Attempts tracks every attempt made through the retry pipeline
	Attempts *prometheus.CounterVec

	// Retries tracks retry events per category and matched pattern
	Retries *prometheus.CounterVec

	// RetryDelay tracks the computed backoff delays
	RetryDelay *prometheus.HistogramVec

	// Sessions tracks open transport sessions
	Sessions prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vibeteam_tool_invocations_total",
				Help: "Total number of completed tool invocations",
			},
			[]string{"tool", "outcome"},
		),
		Attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vibeteam_retry_attempts_total",
				Help: "Total number of attempts made by the retry pipeline",
			},
			[]string{"tool"},
		),
		Retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vibeteam_retries_total",
				Help: "Total number of retries per error category and pattern",
			},
			[]string{"category", "pattern"},
		),
		RetryDelay: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vibeteam_retry_delay_seconds",
				Help:    "Computed backoff delay in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
			},
			[]string{"category"},
		),
		Sessions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "vibeteam_transport_sessions",
				Help: "Number of open transport sessions",
			},
		),
	}
}

// Observe implements retry.Observer.
func (m *Metrics) Observe(ev retry.Event) {
	switch ev.State {
	case retry.StateRunning:
		m.Attempts.WithLabelValues(ev.Name).Inc()
	case retry.StateWaiting:
		m.Retries.WithLabelValues(ev.Category.String(), ev.Pattern).Inc()
		m.RetryDelay.WithLabelValues(ev.Category.String()).Observe(ev.Delay.Seconds())
	}
}

// RecordInvocation counts one finished tools/call.
func (m *Metrics) RecordInvocation(tool string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Invocations.WithLabelValues(tool, outcome).Inc()
}
