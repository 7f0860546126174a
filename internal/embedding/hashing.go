package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingEmbedder is an offline embedder based on feature hashing of word
// tokens. It needs no network access and is deterministic, which makes it
// the default for tests and air-gapped deployments.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder producing dim-length vectors.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashingEmbedder{dim: dim}
}

// Embed hashes each lower-cased token into a bucket with a hash-derived
// sign, then L2-normalises the result. Empty text yields the zero vector.
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range Tokenize(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (h *HashingEmbedder) Dimensions() int { return h.dim }

func (h *HashingEmbedder) Name() string { return "hashing" }

// Tokenize splits text into lower-cased runs of letters and digits.
// Underscores are kept so identifiers like max_connections stay whole.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
