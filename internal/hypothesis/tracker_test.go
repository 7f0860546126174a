package hypothesis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/models"
)

var now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func catalog() []models.DiagnosticStep {
	return []models.DiagnosticStep{
		{ID: "p1", IncidentID: "pool", StepIndex: 1, ObservedFact: "active connections reach max_connections", RootCause: "pool exhaustion"},
		{ID: "p2", IncidentID: "pool", StepIndex: 2, ObservedFact: "too many clients errors in logs", RootCause: "pool exhaustion"},
		{ID: "p3", IncidentID: "pool", StepIndex: 3, ObservedFact: "connection wait time rises", RootCause: "pool exhaustion"},
		{ID: "d1", IncidentID: "disk", StepIndex: 1, ObservedFact: "disk await above 50ms", RootCause: "disk saturation"},
		{ID: "d2", IncidentID: "disk", StepIndex: 2, ObservedFact: "checkpoint takes longer than usual", RootCause: "disk saturation"},
	}
}

func newTracker(t *testing.T, steps []models.DiagnosticStep, cfg Config) *Tracker {
	t.Helper()
	store, err := evidence.NewMemoryStore(context.Background(), steps, nil)
	require.NoError(t, err)
	return NewTracker(store, cfg)
}

func userFact(text string) models.ConfirmedFact {
	return models.ConfirmedFact{Text: text, Source: models.FactSourceUser, ConfirmedAt: now}
}

func findHypothesis(t *testing.T, hs []models.Hypothesis, rootCause string) models.Hypothesis {
	t.Helper()
	for _, h := range hs {
		if h.RootCause == rootCause {
			return h
		}
	}
	t.Fatalf("no hypothesis for %q", rootCause)
	return models.Hypothesis{}
}

func TestUpdateHypotheses_Scoring(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())
	session := models.NewSession("s", "database is slow", now)

	out, err := tracker.UpdateHypotheses(context.Background(), session, []models.ConfirmedFact{
		userFact("Too many clients errors in logs"),
	})
	require.NoError(t, err)
	require.Len(t, out.ConfirmedFacts, 1)
	require.Len(t, out.ActiveHypotheses, 2)

	top := out.ActiveHypotheses[0]
	assert.Equal(t, "pool exhaustion", top.RootCause)
	assert.InDelta(t, 0.5/3+0.06+0.05, top.Confidence, 1e-9)
	assert.Equal(t, []string{"p1", "p2", "p3"}, top.SupportingStepIDs)
	assert.Equal(t, []string{"active connections reach max_connections", "connection wait time rises"}, top.MissingFacts)
	assert.Equal(t, "p1", top.NextStepID)
	assert.InDelta(t, 1.0/3, top.Factors.FactCoverage, 1e-9)
	assert.InDelta(t, 0.6, top.Factors.Frequency, 1e-9)
	assert.Equal(t, 0.5, top.Factors.Relevance)

	disk := out.ActiveHypotheses[1]
	assert.Equal(t, "disk saturation", disk.RootCause)
	assert.InDelta(t, 0.04+0.05, disk.Confidence, 1e-9)
	assert.Equal(t, "d1", disk.NextStepID)
}

func TestUpdateHypotheses_ExecutedStepsCountAsProgress(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())
	session := models.NewSession("s", "database is slow", now)
	session.ConfirmedFacts = []models.ConfirmedFact{userFact("too many clients errors in logs")}
	session.MarkExecuted("p1", "saw 500/500 connections", now)

	out, err := tracker.UpdateHypotheses(context.Background(), session, nil)
	require.NoError(t, err)

	pool := findHypothesis(t, out.ActiveHypotheses, "pool exhaustion")
	assert.InDelta(t, 1.0/3, pool.Factors.StepProgress, 1e-9)
	assert.InDelta(t, 0.5/3+0.1+0.06+0.05, pool.Confidence, 1e-9)
	assert.Equal(t, []string{"p1", "p2", "p3"}, pool.SupportingStepIDs)
	assert.Equal(t, "p2", pool.NextStepID)
	assert.Equal(t, []string{"connection wait time rises"}, pool.MissingFacts)
}

func TestUpdateHypotheses_FullyExecutedRootCauseStaysActive(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())
	session := models.NewSession("s", "database is slow", now)
	session.ConfirmedFacts = []models.ConfirmedFact{
		userFact("active connections reach max_connections"),
		userFact("too many clients errors in logs"),
		userFact("connection wait time rises"),
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		session.MarkExecuted(id, "confirmed", now)
	}

	out, err := tracker.UpdateHypotheses(context.Background(), session, nil)
	require.NoError(t, err)
	require.NotEmpty(t, out.ActiveHypotheses)

	top := out.ActiveHypotheses[0]
	assert.Equal(t, "pool exhaustion", top.RootCause)
	assert.InDelta(t, 0.5+0.3+0.06+0.05, top.Confidence, 1e-9)
	assert.Equal(t, []string{"p1", "p2", "p3"}, top.SupportingStepIDs)
	assert.Equal(t, 1.0, top.Factors.FactCoverage)
	assert.Equal(t, 1.0, top.Factors.StepProgress)
	assert.Empty(t, top.NextStepID)
	assert.Empty(t, top.MissingFacts)
}

func TestUpdateHypotheses_UnknownExecutedStepIgnored(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())
	session := models.NewSession("s", "database is slow", now)
	session.MarkExecuted("retired-step", "", now)

	_, err := tracker.UpdateHypotheses(context.Background(), session, nil)
	assert.NoError(t, err)
}

func TestUpdateHypotheses_Deterministic(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())
	session := models.NewSession("s", "connections disk checkpoint", now)
	session.MarkExecuted("d1", "await 80ms", now)
	facts := []models.ConfirmedFact{userFact("disk await above 50ms"), userFact("checkpoint")}

	first, err := tracker.UpdateHypotheses(context.Background(), session, facts)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := tracker.UpdateHypotheses(context.Background(), session, facts)
		require.NoError(t, err)
		assert.Equal(t, first.ActiveHypotheses, again.ActiveHypotheses)
	}
}

func TestUpdateHypotheses_TopThreeSorted(t *testing.T) {
	steps := []models.DiagnosticStep{
		{ID: "a", StepIndex: 1, ObservedFact: "alpha", RootCause: "A"},
		{ID: "b1", StepIndex: 1, ObservedFact: "beta one", RootCause: "B"},
		{ID: "b2", StepIndex: 2, ObservedFact: "beta two", RootCause: "B"},
		{ID: "c", StepIndex: 1, ObservedFact: "gamma", RootCause: "C"},
		{ID: "d", StepIndex: 1, ObservedFact: "delta", RootCause: "D"},
	}
	tracker := newTracker(t, steps, DefaultConfig())

	out, err := tracker.UpdateHypotheses(context.Background(),
		models.NewSession("s", "alpha beta gamma delta", now),
		[]models.ConfirmedFact{userFact("gamma")})
	require.NoError(t, err)

	hs := out.ActiveHypotheses
	require.Len(t, hs, 3)
	assert.Equal(t, "C", hs[0].RootCause)
	for i := range hs {
		assert.GreaterOrEqual(t, hs[i].Confidence, 0.0)
		assert.LessOrEqual(t, hs[i].Confidence, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, hs[i-1].Confidence, hs[i].Confidence)
		}
	}
}

func TestUpdateHypotheses_ConfidenceCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{FactCoverage: 2, StepProgress: 2, Frequency: 2, Relevance: 2}
	tracker := newTracker(t, catalog(), cfg)

	out, err := tracker.UpdateHypotheses(context.Background(),
		models.NewSession("s", "disk", now),
		[]models.ConfirmedFact{userFact("disk await above 50ms")})
	require.NoError(t, err)
	for _, h := range out.ActiveHypotheses {
		assert.LessOrEqual(t, h.Confidence, 1.0)
	}
}

func TestUpdateHypotheses_EmptyCatalog(t *testing.T) {
	tracker := newTracker(t, nil, DefaultConfig())

	out, err := tracker.UpdateHypotheses(context.Background(),
		models.NewSession("s", "everything is on fire", now),
		[]models.ConfirmedFact{userFact("smoke")})
	require.NoError(t, err)
	assert.Empty(t, out.ActiveHypotheses)
	assert.Len(t, out.ConfirmedFacts, 1)
}

func TestUpdateHypotheses_DoesNotMutateInput(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())
	session := models.NewSession("s", "database is slow", now)
	session.ConfirmedFacts = make([]models.ConfirmedFact, 1, 4)
	session.ConfirmedFacts[0] = userFact("disk await above 50ms")
	before := session.Clone()

	_, err := tracker.UpdateHypotheses(context.Background(), session, []models.ConfirmedFact{userFact("checkpoint")})
	require.NoError(t, err)
	assert.Equal(t, before, session)
	assert.Equal(t, models.ConfirmedFact{}, session.ConfirmedFacts[:2][1], "backing array must not be shared")
}

func TestUpdateHypotheses_SkipsBlankFacts(t *testing.T) {
	tracker := newTracker(t, catalog(), DefaultConfig())

	out, err := tracker.UpdateHypotheses(context.Background(),
		models.NewSession("s", "slow", now),
		[]models.ConfirmedFact{userFact("  "), userFact("disk await")})
	require.NoError(t, err)
	require.Len(t, out.ConfirmedFacts, 1)
	assert.Equal(t, "disk await", out.ConfirmedFacts[0].Text)
}

func TestUpdateHypotheses_RetrievalRelevance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RelevanceMode = RelevanceRetrieval
	tracker := newTracker(t, catalog(), cfg)

	out, err := tracker.UpdateHypotheses(context.Background(),
		models.NewSession("s", "disk await above 50ms", now), nil)
	require.NoError(t, err)

	disk := findHypothesis(t, out.ActiveHypotheses, "disk saturation")
	assert.Greater(t, disk.Factors.Relevance, 0.0)
	assert.LessOrEqual(t, disk.Factors.Relevance, 1.0)
	assert.NotEqual(t, 0.5, disk.Factors.Relevance)
}

var errBackend = errors.New("backend unavailable")

type brokenStore struct{ evidence.Store }

func (brokenStore) Search(context.Context, string, int, map[string]bool) ([]models.ScoredStep, error) {
	return nil, errBackend
}

func TestUpdateHypotheses_PropagatesErrors(t *testing.T) {
	tracker := NewTracker(brokenStore{}, DefaultConfig())
	session := models.NewSession("s", "slow", now)

	out, err := tracker.UpdateHypotheses(context.Background(), session, []models.ConfirmedFact{userFact("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBackend)
	assert.Empty(t, out.ID)
	assert.Empty(t, session.ConfirmedFacts)
}

func TestFactMatches(t *testing.T) {
	tests := []struct {
		observed, confirmed string
		want                bool
	}{
		{"Disk await above 50ms", "disk await", true},
		{"await", "the DISK AWAIT is high", true},
		{"disk await", "cpu", false},
		{"", "anything", false},
		{"anything", "  ", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FactMatches(tt.observed, tt.confirmed), "%q vs %q", tt.observed, tt.confirmed)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"top k", func(c *Config) { c.RetrievalTopK = 0 }},
		{"max hypotheses", func(c *Config) { c.MaxHypotheses = 0 }},
		{"saturation", func(c *Config) { c.FrequencySaturation = 0 }},
		{"negative weight", func(c *Config) { c.Weights.Relevance = -0.1 }},
		{"baseline range", func(c *Config) { c.RelevanceBaseline = 1.5 }},
		{"mode", func(c *Config) { c.RelevanceMode = "semantic" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
