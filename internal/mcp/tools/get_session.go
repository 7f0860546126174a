package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moolen/sleuth/internal/models"
)

// GetSessionTool implements the get_session MCP tool
type GetSessionTool struct {
	diagnoser Diagnoser
}

// NewGetSessionTool creates a new get_session tool
func NewGetSessionTool(d Diagnoser) *GetSessionTool {
	return &GetSessionTool{diagnoser: d}
}

// GetSessionInput represents the input for get_session
type GetSessionInput struct {
	SessionID         string `json:"session_id"`
	IncludeTranscript bool   `json:"include_transcript,omitempty"`
}

// GetSessionOutput is a summary of a session
type GetSessionOutput struct {
	SessionID          string                   `json:"session_id"`
	ProblemStatement   string                   `json:"problem_statement"`
	ConfirmedFacts     []string                 `json:"confirmed_facts"`
	Hypotheses         []HypothesisSummary      `json:"hypotheses"`
	ExecutedSteps      []string                 `json:"executed_steps"`
	RecommendedStepIDs []string                 `json:"recommended_step_ids"`
	PendingStepID      string                   `json:"pending_step_id,omitempty"`
	Transcript         []models.TranscriptEntry `json:"transcript,omitempty"`
}

// Execute returns the session summary.
func (t *GetSessionTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params GetSessionInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	s, err := t.diagnoser.GetSession(ctx, params.SessionID)
	if err != nil {
		return nil, err
	}

	out := GetSessionOutput{
		SessionID:          s.ID,
		ProblemStatement:   s.ProblemStatement,
		ConfirmedFacts:     s.FactTexts(),
		Hypotheses:         summarize(s.ActiveHypotheses),
		ExecutedSteps:      make([]string, 0, len(s.ExecutedSteps)),
		RecommendedStepIDs: s.RecommendedStepIDs,
		PendingStepID:      s.PendingStepID,
	}
	for _, e := range s.ExecutedSteps {
		out.ExecutedSteps = append(out.ExecutedSteps, e.StepID)
	}
	if params.IncludeTranscript {
		out.Transcript = s.Transcript
	}
	return out, nil
}
