// Package metrics exposes Prometheus instrumentation for conversation turns,
// retrieval steps and collaborator calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "estate_assistant"

// Turn outcomes.
const (
	OutcomeResults   = "results"
	OutcomeNoResults = "no_results"
	OutcomeGenerated = "generated"
	OutcomeApology   = "apology"
)

// Collaborator labels.
const (
	CollaboratorStore     = "property_store"
	CollaboratorVector    = "vector_index"
	CollaboratorEmbedder  = "embedder"
	CollaboratorGenerator = "generator"
	CollaboratorSession   = "session_store"
	CollaboratorLog       = "conversation_log"
)

// Metrics groups the assistant's collectors. A nil *Metrics is a no-op.
type Metrics struct {
	TurnsTotal          *prometheus.CounterVec
	TurnDuration        *prometheus.HistogramVec
	RetrievalStepsTotal *prometheus.CounterVec
	CollaboratorCalls   *prometheus.HistogramVec
	CollaboratorErrors  *prometheus.CounterVec
	ActiveSockets       prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "conversation",
				Name:      "turns_total",
				Help:      "Conversation turns processed by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "conversation",
				Name:      "turn_duration_seconds",
				Help:      "Time to process one conversation turn",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		RetrievalStepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "retrieval",
				Name:      "steps_total",
				Help:      "Retrieval steps attempted by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		CollaboratorCalls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "collaborator",
				Name:      "call_duration_seconds",
				Help:      "Duration of calls to external collaborators",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"collaborator"},
		),
		CollaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "collaborator",
				Name:      "errors_total",
				Help:      "Failed calls to external collaborators",
			},
			[]string{"collaborator"},
		),
		ActiveSockets: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "websocket",
				Name:      "active_connections",
				Help:      "Open conversation websocket connections",
			},
		),
	}
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// ObserveStep records one retrieval step.
func (m *Metrics) ObserveStep(strategy, status string) {
	if m == nil {
		return
	}
	m.RetrievalStepsTotal.WithLabelValues(strategy, status).Inc()
}

// ObserveCall records a collaborator call and whether it failed.
func (m *Metrics) ObserveCall(collaborator string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.CollaboratorCalls.WithLabelValues(collaborator).Observe(took.Seconds())
	if err != nil {
		m.CollaboratorErrors.WithLabelValues(collaborator).Inc()
	}
}

// SocketOpened increments the active websocket gauge.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.ActiveSockets.Inc()
}

// SocketClosed decrements the active websocket gauge.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.ActiveSockets.Dec()
}
