// Package metrics exposes Prometheus instrumentation for diagnosis turns.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moolen/sleuth/internal/models"
)

// Metrics holds the collectors updated by the dialogue layer.
type Metrics struct {
	SessionsStarted     prometheus.Counter
	TurnsTotal          *prometheus.CounterVec   // by outcome: ok, error
	ActionsTotal        *prometheus.CounterVec   // by action kind
	InterpreterFallback *prometheus.CounterVec   // by interpreter op
	TurnDuration        prometheus.Histogram     // seconds
	TopConfidence       prometheus.Histogram     // confidence of the leading hypothesis
	ActiveHypotheses    *prometheus.HistogramVec // by phase
}

// NewMetrics creates and registers the collectors with reg.
// Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	sessionsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sleuth_sessions_started_total",
		Help: "Total number of diagnosis sessions started",
	})

	turnsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sleuth_turns_total",
		Help: "Total number of dialogue turns by outcome",
	}, []string{"outcome"})

	actionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sleuth_actions_total",
		Help: "Total number of actions emitted by the recommendation engine",
	}, []string{"kind"})

	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sleuth_interpreter_fallbacks_total",
		Help: "Number of times the heuristic interpreter replaced the language model",
	}, []string{"op"})

	turnDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sleuth_turn_duration_seconds",
		Help:    "Time spent handling one dialogue turn",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	topConfidence := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sleuth_top_hypothesis_confidence",
		Help:    "Confidence of the leading hypothesis after each turn",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	activeHypotheses := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sleuth_active_hypotheses",
		Help:    "Number of active hypotheses after each turn",
		Buckets: []float64{0, 1, 2, 3, 5, 10},
	}, []string{"phase"})

	reg.MustRegister(sessionsStarted, turnsTotal, actionsTotal, fallback,
		turnDuration, topConfidence, activeHypotheses)

	return &Metrics{
		SessionsStarted:     sessionsStarted,
		TurnsTotal:          turnsTotal,
		ActionsTotal:        actionsTotal,
		InterpreterFallback: fallback,
		TurnDuration:        turnDuration,
		TopConfidence:       topConfidence,
		ActiveHypotheses:    activeHypotheses,
	}
}

// ObserveTurn records the outcome of a completed turn. A nil receiver is a no-op.
func (m *Metrics) ObserveTurn(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(elapsed.Seconds())
}

// ObserveState records the action and hypothesis set produced by a turn.
func (m *Metrics) ObserveState(s models.SessionState, action models.Action, phase string) {
	if m == nil {
		return
	}
	if action != nil {
		m.ActionsTotal.WithLabelValues(string(action.Kind())).Inc()
	}
	m.ActiveHypotheses.WithLabelValues(phase).Observe(float64(len(s.ActiveHypotheses)))
	if top, ok := s.TopHypothesis(); ok {
		m.TopConfidence.Observe(top.Confidence)
	}
}

// ObserveFallback counts an interpreter fallback for op.
func (m *Metrics) ObserveFallback(op string, _ error) {
	if m == nil {
		return
	}
	m.InterpreterFallback.WithLabelValues(op).Inc()
}

// ObserveSessionStarted counts a new session.
func (m *Metrics) ObserveSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}
