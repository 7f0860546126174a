package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sleuth/internal/models"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	assert.Panics(t, func() { NewMetrics(reg) }, "registering twice must panic")
}

func TestObserveTurn(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveTurn(10*time.Millisecond, nil)
	m.ObserveTurn(20*time.Millisecond, nil)
	m.ObserveTurn(5*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TurnDuration))
}

func TestObserveState(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	s := models.SessionState{ActiveHypotheses: []models.Hypothesis{{RootCause: "a", Confidence: 0.7}}}

	m.ObserveState(s, models.AskGeneral{}, "early")
	m.ObserveState(s, models.AskGeneral{}, "early")
	m.ObserveState(models.SessionState{}, models.AskInitialInfo{}, "early")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("ask_general")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("ask_initial_info")))
}

func TestObserveFallbackAndSessions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveFallback("extract_facts", errors.New("timeout"))
	m.ObserveSessionStarted()
	m.ObserveSessionStarted()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.InterpreterFallback.WithLabelValues("extract_facts")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsStarted))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn(time.Second, nil)
		m.ObserveState(models.SessionState{}, models.AskGeneral{}, "late")
		m.ObserveFallback("classify_feedback", nil)
		m.ObserveSessionStarted()
	})
}
