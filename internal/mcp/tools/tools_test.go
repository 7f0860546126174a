package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/models"
)

type fakeDiagnoser struct {
	session  models.SessionState
	action   models.Action
	err      error
	lastText string
	lastK    int
}

func (f *fakeDiagnoser) result() dialogue.TurnResult {
	return dialogue.TurnResult{Session: f.session, Action: f.action, Message: "check it"}
}

func (f *fakeDiagnoser) StartSession(_ context.Context, problem string) (dialogue.TurnResult, error) {
	f.lastText = problem
	return f.result(), f.err
}

func (f *fakeDiagnoser) HandleTurn(_ context.Context, _ string, text string) (dialogue.TurnResult, error) {
	f.lastText = text
	return f.result(), f.err
}

func (f *fakeDiagnoser) GetSession(_ context.Context, id string) (models.SessionState, error) {
	if f.err != nil {
		return models.SessionState{}, f.err
	}
	return f.session, nil
}

func (f *fakeDiagnoser) SearchSteps(_ context.Context, _ string, k int) ([]models.ScoredStep, error) {
	f.lastK = k
	return []models.ScoredStep{{Step: models.DiagnosticStep{ID: "conn-1"}, Score: 0.8}}, f.err
}

func newFake() *fakeDiagnoser {
	s := models.NewSession("sess-1", "db refuses connections", models.SessionState{}.CreatedAt)
	s.ActiveHypotheses = []models.Hypothesis{{RootCause: "connection pool exhaustion", Confidence: 0.4, NextStepID: "conn-1"}}
	s.ExecutedSteps = []models.ExecutedStep{{StepID: "conn-0"}}
	s.ConfirmedFacts = []models.ConfirmedFact{{Text: "errors started at 10:00", Source: models.FactSourceUser}}
	s.AppendTranscript(models.RoleUser, "db refuses connections", "", s.CreatedAt)
	return &fakeDiagnoser{
		session: s,
		action: models.RecommendStep{
			Step:      models.DiagnosticStep{ID: "conn-1", RootCause: "connection pool exhaustion"},
			RootCause: "connection pool exhaustion",
			Reason:    models.ReasonNextStep,
		},
	}
}

func TestStartDiagnosisTool(t *testing.T) {
	f := newFake()
	out, err := NewStartDiagnosisTool(f).Execute(context.Background(), json.RawMessage(`{"problem":"db refuses connections"}`))
	require.NoError(t, err)

	turn, ok := out.(TurnOutput)
	require.True(t, ok)
	assert.Equal(t, "db refuses connections", f.lastText)
	assert.Equal(t, "sess-1", turn.SessionID)
	assert.Equal(t, models.ActionRecommendStep, turn.ActionKind)
	assert.Equal(t, []string{"conn-0"}, turn.ExecutedSteps)
	require.Len(t, turn.Hypotheses, 1)
	assert.Equal(t, "conn-1", turn.Hypotheses[0].NextStepID)

	action, err := models.UnmarshalAction(turn.Action)
	require.NoError(t, err)
	assert.Equal(t, f.action, action)
}

func TestReportObservationTool(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		err     error
		wantErr string
	}{
		{name: "ok", input: `{"session_id":"sess-1","observation":"pool is full"}`},
		{name: "missing session", input: `{"observation":"pool is full"}`, wantErr: "session_id is required"},
		{name: "bad json", input: `{`, wantErr: "invalid input"},
		{name: "diagnoser error", input: `{"session_id":"nope","observation":"x"}`, err: models.NewSessionNotFound("nope"), wantErr: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			f.err = tt.err
			out, err := NewReportObservationTool(f).Execute(context.Background(), json.RawMessage(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "pool is full", f.lastText)
			assert.Equal(t, "check it", out.(TurnOutput).Message)
		})
	}
}

func TestGetSessionTool(t *testing.T) {
	f := newFake()
	tool := NewGetSessionTool(f)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"sess-1"}`))
	require.NoError(t, err)
	summary := out.(GetSessionOutput)
	assert.Equal(t, []string{"errors started at 10:00"}, summary.ConfirmedFacts)
	assert.Equal(t, []string{"conn-0"}, summary.ExecutedSteps)
	assert.Nil(t, summary.Transcript)

	out, err = tool.Execute(context.Background(), json.RawMessage(`{"session_id":"sess-1","include_transcript":true}`))
	require.NoError(t, err)
	assert.Len(t, out.(GetSessionOutput).Transcript, 1)

	f.err = errors.New("boom")
	_, err = tool.Execute(context.Background(), json.RawMessage(`{"session_id":"sess-1"}`))
	assert.Error(t, err)
}

func TestSearchStepsTool_Limits(t *testing.T) {
	tests := []struct {
		name  string
		input string
		wantK int
	}{
		{"default", `{"query":"slow disk"}`, defaultSearchResults},
		{"explicit", `{"query":"slow disk","max_results":3}`, 3},
		{"capped", `{"query":"slow disk","max_results":500}`, maxSearchResults},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			out, err := NewSearchStepsTool(f).Execute(context.Background(), json.RawMessage(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.wantK, f.lastK)
			assert.Len(t, out.(SearchStepsOutput).Steps, 1)
		})
	}

	_, err := NewSearchStepsTool(newFake()).Execute(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}
