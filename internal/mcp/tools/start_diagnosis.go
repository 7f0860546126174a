package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// StartDiagnosisTool implements the start_diagnosis MCP tool
type StartDiagnosisTool struct {
	diagnoser Diagnoser
}

// NewStartDiagnosisTool creates a new start_diagnosis tool
func NewStartDiagnosisTool(d Diagnoser) *StartDiagnosisTool {
	return &StartDiagnosisTool{diagnoser: d}
}

// StartDiagnosisInput represents the input for start_diagnosis
type StartDiagnosisInput struct {
	Problem string `json:"problem"`
}

// Execute opens a session for the problem and returns the first action.
func (t *StartDiagnosisTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params StartDiagnosisInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	res, err := t.diagnoser.StartSession(ctx, params.Problem)
	if err != nil {
		return nil, err
	}
	return turnOutput(res)
}
