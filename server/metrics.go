package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/finadvisor/advisor"
)

// Metrics holds the service's Prometheus collectors. It implements the llm
// Observer contract and supplies the orchestrator hooks and the registry
// gauge, so all instrumentation funnels through one place.
type Metrics struct {
	completionTotal     *prometheus.CounterVec
	completionDuration  *prometheus.HistogramVec
	completionAttempts  prometheus.Histogram
	stageTransitions    *prometheus.CounterVec
	degradedExtractions *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	requestDuration     *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		completionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finadvisor",
			Name:      "completions_total",
			Help:      "Completion calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		completionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finadvisor",
			Name:      "completion_duration_seconds",
			Help:      "Completion latency including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
		completionAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "finadvisor",
			Name:      "completion_attempts",
			Help:      "Attempts used per completion call.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finadvisor",
			Name:      "stage_transitions_total",
			Help:      "Orchestrator stage transitions by target stage.",
		}, []string{"to"}),
		degradedExtractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "finadvisor",
			Name:      "degraded_extractions_total",
			Help:      "Stage operations that fell back to heuristic or placeholder extraction.",
		}, []string{"operation"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "finadvisor",
			Name:      "active_sessions",
			Help:      "Live sessions in the registry.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "finadvisor",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status class.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"route", "status"}),
	}

	reg.MustRegister(
		m.completionTotal,
		m.completionDuration,
		m.completionAttempts,
		m.stageTransitions,
		m.degradedExtractions,
		m.activeSessions,
		m.requestDuration,
	)
	return m
}

// ObserveCompletion satisfies the llm client's observer hook.
func (m *Metrics) ObserveCompletion(provider string, duration time.Duration, attempts int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.completionTotal.WithLabelValues(provider, outcome).Inc()
	m.completionDuration.WithLabelValues(provider).Observe(duration.Seconds())
	m.completionAttempts.Observe(float64(attempts))
}

// Hooks returns orchestrator hooks backed by these collectors.
func (m *Metrics) Hooks() advisor.Hooks {
	return advisor.Hooks{
		StageChanged: func(from, to advisor.Stage) {
			m.stageTransitions.WithLabelValues(string(to)).Inc()
		},
		Degraded: func(operation string) {
			m.degradedExtractions.WithLabelValues(operation).Inc()
		},
	}
}

// SessionGauge returns the registry gauge callback.
func (m *Metrics) SessionGauge() func(active int) {
	return func(active int) { m.activeSessions.Set(float64(active)) }
}
