package evidence

import (
	"context"
	"fmt"

	"github.com/moolen/sleuth/internal/embedding"
	"github.com/moolen/sleuth/internal/models"
)

// embedConcurrency bounds parallel embedding calls while building a catalog.
const embedConcurrency = 4

// MemoryStore keeps the whole catalog in process. It is immutable after
// construction and safe for concurrent use.
type MemoryStore struct {
	entries  []entry
	byID     map[string]int
	embedder embedding.Embedder
}

// NewMemoryStore indexes steps in the given order. When embedder is non-nil
// every step is embedded up front and Search uses cosine similarity;
// otherwise Search uses lexical overlap. Duplicate step ids are rejected.
func NewMemoryStore(ctx context.Context, steps []models.DiagnosticStep, embedder embedding.Embedder) (*MemoryStore, error) {
	s := &MemoryStore{
		entries:  make([]entry, 0, len(steps)),
		byID:     make(map[string]int, len(steps)),
		embedder: embedder,
	}

	var vectors [][]float32
	if embedder != nil && len(steps) > 0 {
		texts := make([]string, len(steps))
		for i, step := range steps {
			texts[i] = SearchText(step)
		}
		var err error
		vectors, err = embedding.EmbedAll(ctx, embedder, texts, embedConcurrency)
		if err != nil {
			return nil, fmt.Errorf("failed to embed catalog: %w", err)
		}
	}

	for i, step := range steps {
		if step.ID == "" {
			return nil, models.NewValidationError("step %d has an empty id", i)
		}
		if _, dup := s.byID[step.ID]; dup {
			return nil, models.NewValidationError("duplicate step id %q", step.ID)
		}
		var vec []float32
		if vectors != nil {
			vec = vectors[i]
		}
		s.byID[step.ID] = len(s.entries)
		s.entries = append(s.entries, newEntry(step, vec))
	}
	return s, nil
}

func (s *MemoryStore) GetStep(_ context.Context, id string) (models.DiagnosticStep, error) {
	idx, ok := s.byID[id]
	if !ok {
		return models.DiagnosticStep{}, models.NewStepNotFound(id)
	}
	return s.entries[idx].step, nil
}

func (s *MemoryStore) StepsByRootCause(_ context.Context, rootCause string) ([]models.DiagnosticStep, error) {
	var out []models.DiagnosticStep
	for _, e := range s.entries {
		if e.step.RootCause == rootCause {
			out = append(out, e.step)
		}
	}
	models.SortSteps(out)
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, topK int, exclude map[string]bool) ([]models.ScoredStep, error) {
	return rank(ctx, s.embedder, query, s.entries, topK, exclude)
}

func (s *MemoryStore) Len() int {
	return len(s.entries)
}

// Steps returns every step in catalog order.
func (s *MemoryStore) Steps() []models.DiagnosticStep {
	out := make([]models.DiagnosticStep, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.step
	}
	return out
}
