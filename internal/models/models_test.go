package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("lookup failed: %w", NewStepNotFound("s-1"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, `lookup failed: step "s-1" not found`, err.Error())

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "step", nf.Kind)
	assert.Equal(t, "s-1", nf.ID)
}

func TestCollaboratorError_Unwraps(t *testing.T) {
	cause := errors.New("timeout")
	err := &CollaboratorError{Collaborator: "anthropic", Op: "extract_facts", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "anthropic extract_facts failed")
}

func TestSessionState_CloneDoesNotAlias(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSession("sess-1", "replication lag", now)
	s.ConfirmedFacts = []ConfirmedFact{{Text: "lag above 30s", Source: FactSourceUser, ConfirmedAt: now}}
	s.ActiveHypotheses = []Hypothesis{{RootCause: "slow disk", SupportingStepIDs: []string{"a", "b"}}}

	c := s.Clone()
	c.ConfirmedFacts[0].Text = "changed"
	c.ActiveHypotheses[0].SupportingStepIDs[0] = "z"

	assert.Equal(t, "lag above 30s", s.ConfirmedFacts[0].Text)
	assert.Equal(t, "a", s.ActiveHypotheses[0].SupportingStepIDs[0])
}

func TestSessionState_RecordAndExecute(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSession("sess-1", "p", now)

	s.RecordRecommendation("s1")
	s.RecordRecommendation("s2")
	s.RecordRecommendation("s1")

	assert.Equal(t, []string{"s1", "s2"}, s.RecommendedStepIDs)
	assert.Equal(t, "s1", s.PendingStepID)

	s.MarkExecuted("s1", "saw it", now)
	s.MarkExecuted("s1", "again", now)

	require.Len(t, s.ExecutedSteps, 1)
	assert.Equal(t, "saw it", s.ExecutedSteps[0].Result)
	assert.Empty(t, s.PendingStepID)
	assert.True(t, s.IsExecuted("s1"))
	assert.False(t, s.IsExecuted("s2"))
	assert.Equal(t, map[string]bool{"s1": true}, s.ExecutedSet())
}

func TestSessionState_ExecutedWithoutRecommendation(t *testing.T) {
	s := NewSession("sess-1", "p", time.Time{})
	s.MarkExecuted("self-reported", "", time.Time{})

	assert.True(t, s.IsExecuted("self-reported"))
	assert.False(t, s.WasRecommended("self-reported"))
}

func TestSortSteps(t *testing.T) {
	steps := []DiagnosticStep{
		{ID: "b", StepIndex: 2},
		{ID: "c", StepIndex: 1},
		{ID: "a", StepIndex: 2},
	}
	SortSteps(steps)

	assert.Equal(t, "c", steps[0].ID)
	assert.Equal(t, "a", steps[1].ID)
	assert.Equal(t, "b", steps[2].ID)
}

func TestActionEnvelope_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		action Action
	}{
		{"ask initial info", AskInitialInfo{}},
		{"ask general", AskGeneral{}},
		{"confirm", ConfirmRootCause{RootCause: "lock contention", Confidence: 0.9, SupportingStepIDs: []string{"s1"}}},
		{"recommend", RecommendStep{
			Step:      DiagnosticStep{ID: "s1", RootCause: "lock contention", StepIndex: 1},
			RootCause: "lock contention",
			Reason:    ReasonDiscriminating,
		}},
		{"ask symptom", AskSymptom{MissingFact: "waits on row locks", RootCause: "lock contention"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalAction(tt.action)
			require.NoError(t, err)

			decoded, err := UnmarshalAction(data)
			require.NoError(t, err)
			assert.Equal(t, tt.action, decoded)
			assert.Equal(t, tt.action.Kind(), decoded.Kind())
		})
	}
}

func TestUnmarshalAction_UnknownKind(t *testing.T) {
	_, err := UnmarshalAction([]byte(`{"kind":"launch_rockets"}`))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestMarshalAction_Nil(t *testing.T) {
	_, err := MarshalAction(nil)
	assert.Error(t, err)
}
