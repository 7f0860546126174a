// Package llm interprets operator messages: it extracts confirmed facts and
// decides whether a pending diagnostic step was carried out.
package llm

import (
	"context"
)

// TurnContext is what the interpreter knows about the session when reading
// an operator message.
type TurnContext struct {
	ProblemStatement string
	ConfirmedFacts   []string
	// PendingObservation is the observed fact of the step awaiting feedback,
	// empty when nothing is pending.
	PendingObservation string
	PendingMethod      string
}

// Interpreter turns free text into structured input for the tracker.
type Interpreter interface {
	// ExtractFacts returns the short factual statements contained in text.
	ExtractFacts(ctx context.Context, text string, tc TurnContext) ([]string, error)

	// ClassifyFeedback reports whether text says the pending step was
	// carried out.
	ClassifyFeedback(ctx context.Context, text string, tc TurnContext) (bool, error)

	// Name identifies the implementation in logs and metrics.
	Name() string
}
