// Package hash provides a deterministic, dependency-free embedder. Tokens
// are hashed into a fixed number of buckets and the bucket counts are
// L2-normalized, so identical texts always produce identical vectors and
// texts sharing tokens have positive cosine similarity. Suitable for tests
// and offline operation; swap in a model-backed embedder for production
// retrieval quality.
package hash

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const defaultDimensions = 64

// Embedder implements memory.Embedder with token-hash bucket counts.
type Embedder struct {
	dims int
}

// New creates a hash embedder with the default dimensionality.
func New() *Embedder {
	return &Embedder{dims: defaultDimensions}
}

// Embed converts text to a normalized bucket-count vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dims)]++
	}
	return normalize(vec), nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int { return e.dims }

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
