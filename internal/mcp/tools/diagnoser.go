// Package tools implements the MCP tools that drive a diagnosis.
package tools

import (
	"context"
	"encoding/json"

	"github.com/moolen/sleuth/internal/dialogue"
	"github.com/moolen/sleuth/internal/models"
)

// Diagnoser is the dialogue surface the tools need.
type Diagnoser interface {
	StartSession(ctx context.Context, problem string) (dialogue.TurnResult, error)
	HandleTurn(ctx context.Context, sessionID, text string) (dialogue.TurnResult, error)
	GetSession(ctx context.Context, id string) (models.SessionState, error)
	SearchSteps(ctx context.Context, query string, topK int) ([]models.ScoredStep, error)
}

// HypothesisSummary is the compact view of a hypothesis returned to agents.
type HypothesisSummary struct {
	RootCause    string   `json:"root_cause"`
	Confidence   float64  `json:"confidence"`
	MissingFacts []string `json:"missing_facts,omitempty"`
	NextStepID   string   `json:"next_step_id,omitempty"`
}

// TurnOutput is returned by start_diagnosis and report_observation.
type TurnOutput struct {
	SessionID     string              `json:"session_id"`
	Message       string              `json:"message"`
	ActionKind    models.ActionKind   `json:"action_kind"`
	Action        json.RawMessage     `json:"action"`
	Hypotheses    []HypothesisSummary `json:"hypotheses"`
	ExecutedSteps []string            `json:"executed_steps,omitempty"`
}

func turnOutput(res dialogue.TurnResult) (TurnOutput, error) {
	action, err := models.MarshalAction(res.Action)
	if err != nil {
		return TurnOutput{}, err
	}
	out := TurnOutput{
		SessionID:  res.Session.ID,
		Message:    res.Message,
		ActionKind: res.Action.Kind(),
		Action:     action,
		Hypotheses: summarize(res.Session.ActiveHypotheses),
	}
	for _, e := range res.Session.ExecutedSteps {
		out.ExecutedSteps = append(out.ExecutedSteps, e.StepID)
	}
	return out, nil
}

func summarize(hs []models.Hypothesis) []HypothesisSummary {
	out := make([]HypothesisSummary, 0, len(hs))
	for _, h := range hs {
		out = append(out, HypothesisSummary{
			RootCause:    h.RootCause,
			Confidence:   h.Confidence,
			MissingFacts: h.MissingFacts,
			NextStepID:   h.NextStepID,
		})
	}
	return out
}
