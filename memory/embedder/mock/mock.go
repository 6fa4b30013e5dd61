// Package mock provides a deterministic embedder for tests and for
// running without any embedding provider configured. The same text
// always maps to the same unit vector, so similarity queries behave
// consistently across runs.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

const defaultDimensions = 128

// Embedder generates hash-seeded pseudo-random embeddings.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the default dimensionality.
func New() *Embedder {
	return &Embedder{dimensions: defaultDimensions}
}

// NewWithDimensions creates a mock embedder producing vectors of size d.
func NewWithDimensions(d int) *Embedder {
	if d <= 0 {
		d = defaultDimensions
	}
	return &Embedder{dimensions: d}
}

// Embed derives a unit vector from the text hash. Identical texts give
// identical vectors.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))

	vec := make([]float32, e.dimensions)
	seed := h.Sum64()
	for i := range vec {
		// LCG keeps the sequence deterministic per seed.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int { return e.dimensions }

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
