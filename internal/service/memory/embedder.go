package memory

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder converts text to a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder produces deterministic embeddings from a text hash. It stands
// in for a real embedding model when no inference backend is configured, and
// keeps tests hermetic. Identical texts map to identical vectors, so exact
// recall still works; semantic similarity does not.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a 384-dimension hash embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{dimensions: 384}
}

// Embed creates a unit vector seeded by the fnv hash of text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, e.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(embedding), nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
