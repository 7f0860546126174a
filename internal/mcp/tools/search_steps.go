package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moolen/sleuth/internal/models"
)

const (
	defaultSearchResults = 10
	maxSearchResults     = 50
)

// SearchStepsTool implements the search_steps MCP tool
type SearchStepsTool struct {
	diagnoser Diagnoser
}

// NewSearchStepsTool creates a new search_steps tool
func NewSearchStepsTool(d Diagnoser) *SearchStepsTool {
	return &SearchStepsTool{diagnoser: d}
}

// SearchStepsInput represents the input for search_steps
type SearchStepsInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"` // default 10, max 50
}

// SearchStepsOutput lists matching catalog steps
type SearchStepsOutput struct {
	Query string              `json:"query"`
	Steps []models.ScoredStep `json:"steps"`
}

// Execute searches the step catalog.
func (t *SearchStepsTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var params SearchStepsInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	k := params.MaxResults
	if k <= 0 {
		k = defaultSearchResults
	}
	if k > maxSearchResults {
		k = maxSearchResults
	}

	steps, err := t.diagnoser.SearchSteps(ctx, params.Query, k)
	if err != nil {
		return nil, err
	}
	return SearchStepsOutput{Query: params.Query, Steps: steps}, nil
}
