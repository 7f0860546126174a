// Package embedding turns text into fixed-length vectors for semantic
// search over the diagnostic step catalog.
package embedding

import (
	"context"
	"fmt"

	"github.com/moolen/sleuth/internal/models"
	"golang.org/x/sync/errgroup"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the length of every vector Embed produces.
	Dimensions() int

	// Name identifies the provider and model, e.g. "genai:gemini-embedding-001".
	Name() string
}

// checkedEmbedder enforces the configured vector dimension.
type checkedEmbedder struct {
	inner Embedder
	dim   int
}

// Checked wraps e so that every returned vector is verified to have exactly
// dim elements. A vector of any other length yields a
// *models.DimensionMismatchError. Mismatches are not retried.
func Checked(e Embedder, dim int) Embedder {
	if c, ok := e.(*checkedEmbedder); ok && c.dim == dim {
		return c
	}
	return &checkedEmbedder{inner: e, dim: dim}
}

func (c *checkedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.dim {
		return nil, &models.DimensionMismatchError{Expected: c.dim, Got: len(vec)}
	}
	return vec, nil
}

func (c *checkedEmbedder) Dimensions() int { return c.dim }

func (c *checkedEmbedder) Name() string { return c.inner.Name() }

// EmbedAll embeds texts with at most concurrency calls in flight and returns
// the vectors in input order. The first error cancels the remaining calls.
func EmbedAll(ctx context.Context, e Embedder, texts []string, concurrency int) ([][]float32, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
