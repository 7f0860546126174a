package embedding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/moolen/sleuth/internal/models"
)

// EncodeVector packs vec as little-endian float32 values, 4 bytes each.
func EncodeVector(vec []float32) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(vec)*4))
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

// DecodeVector unpacks a blob written by EncodeVector. The blob must be
// exactly dim*4 bytes long.
func DecodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		if len(blob)%4 != 0 {
			return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
		}
		return nil, &models.DimensionMismatchError{Expected: dim, Got: len(blob) / 4}
	}
	vec := make([]float32, dim)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vec, nil
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length are an error; a zero vector has similarity 0 with everything.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &models.DimensionMismatchError{Expected: len(a), Got: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
