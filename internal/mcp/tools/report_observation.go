package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ReportObservationTool implements the report_observation MCP tool
type ReportObservationTool struct {
	diagnoser Diagnoser
}

// NewReportObservationTool creates a new report_observation tool
func NewReportObservationTool(d Diagnoser) *ReportObservationTool {
	return &ReportObservationTool{diagnoser: d}
}

// ReportObservationInput represents the input for report_observation
type ReportObservationInput struct {
	SessionID   string `json:"session_id"`
	Observation string `json:"observation"`
}

// Execute feeds the observation into the session as an operator turn.
func (t *ReportObservationTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params ReportObservationInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	res, err := t.diagnoser.HandleTurn(ctx, params.SessionID, params.Observation)
	if err != nil {
		return nil, err
	}
	return turnOutput(res)
}
