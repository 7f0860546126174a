// Package retriever turns a diagnosis session into a ranked list of
// candidate diagnostic steps.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/moolen/sleuth/internal/evidence"
	"github.com/moolen/sleuth/internal/logging"
	"github.com/moolen/sleuth/internal/models"
)

// Retriever ranks catalog steps against the accumulated query.
type Retriever struct {
	store  evidence.Store
	logger *logging.Logger
}

// New creates a retriever over store.
func New(store evidence.Store) *Retriever {
	return &Retriever{
		store:  store,
		logger: logging.GetLogger("retriever"),
	}
}

// Retrieve returns up to topK steps by descending score, skipping excluded
// ids. Store errors are returned unchanged in meaning and never retried.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, excluded map[string]bool) ([]models.ScoredStep, error) {
	if topK <= 0 {
		return []models.ScoredStep{}, nil
	}
	steps, err := r.store.Search(ctx, query, topK, excluded)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	r.logger.WithContext(ctx).DebugWithFields("Retrieved candidate steps",
		logging.Field("top_k", topK),
		logging.Field("excluded", len(excluded)),
		logging.Field("returned", len(steps)),
	)
	return steps, nil
}

// BuildQuery joins the problem statement and each fact, in order, with
// single spaces. Blank parts are skipped.
func BuildQuery(problem string, facts []string) string {
	parts := make([]string, 0, len(facts)+1)
	if p := strings.TrimSpace(problem); p != "" {
		parts = append(parts, p)
	}
	for _, f := range facts {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// ForSession retrieves candidates for a session, excluding executed steps.
func (r *Retriever) ForSession(ctx context.Context, s models.SessionState, topK int) ([]models.ScoredStep, error) {
	return r.Retrieve(ctx, BuildQuery(s.ProblemStatement, s.FactTexts()), topK, s.ExecutedSet())
}
