// Package evidence is the read-only query surface over the catalog of
// diagnostic steps.
package evidence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/moolen/sleuth/internal/embedding"
	"github.com/moolen/sleuth/internal/models"
)

// Store provides lookups and ranked search over diagnostic steps.
type Store interface {
	// GetStep returns the step with the given id or a *models.NotFoundError.
	GetStep(ctx context.Context, id string) (models.DiagnosticStep, error)

	// StepsByRootCause returns every step for a root cause ordered by step index.
	StepsByRootCause(ctx context.Context, rootCause string) ([]models.DiagnosticStep, error)

	// Search returns up to topK steps not in exclude, by descending score.
	// Equal scores keep catalog insertion order. An empty query returns
	// steps in catalog order with score 0.
	Search(ctx context.Context, query string, topK int, exclude map[string]bool) ([]models.ScoredStep, error)

	// Len returns the number of steps in the catalog.
	Len() int
}

// entry is a catalog step prepared for scoring.
type entry struct {
	step   models.DiagnosticStep
	vector []float32
	tokens map[string]struct{}
}

func newEntry(step models.DiagnosticStep, vector []float32) entry {
	return entry{step: step, vector: vector, tokens: tokenSet(SearchText(step))}
}

// SearchText is the text of a step that is embedded and matched against
// queries.
func SearchText(step models.DiagnosticStep) string {
	return step.ObservedFact + " " + step.Method + " " + step.Analysis + " " + step.RootCause
}

// rank scores entries against query and returns the topK best. With a nil
// embedder the lexical score is used.
func rank(ctx context.Context, embedder embedding.Embedder, query string, entries []entry, topK int, exclude map[string]bool) ([]models.ScoredStep, error) {
	if topK <= 0 || len(entries) == 0 {
		return []models.ScoredStep{}, nil
	}

	eligible := make([]entry, 0, len(entries))
	for _, e := range entries {
		if !exclude[e.step.ID] {
			eligible = append(eligible, e)
		}
	}
	candidates := make([]models.ScoredStep, len(eligible))
	for i, e := range eligible {
		candidates[i].Step = e.step
	}

	if strings.TrimSpace(query) == "" {
		return truncate(candidates, topK), nil
	}

	if embedder != nil {
		qvec, err := embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		for i, e := range eligible {
			score, err := embedding.Cosine(qvec, e.vector)
			if err != nil {
				return nil, fmt.Errorf("scoring step %q: %w", e.step.ID, err)
			}
			candidates[i].Score = score
		}
	} else {
		qtokens := tokenSet(query)
		for i, e := range eligible {
			candidates[i].Score = ochiai(qtokens, e.tokens)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return truncate(candidates, topK), nil
}

func truncate(steps []models.ScoredStep, topK int) []models.ScoredStep {
	if len(steps) > topK {
		return steps[:topK]
	}
	return steps
}

func tokenSet(text string) map[string]struct{} {
	tokens := embedding.Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ochiai is |A∩B| / sqrt(|A|·|B|) over token sets.
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}
