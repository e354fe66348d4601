// Package embed turns text into vectors and compares them. Providers sit
// behind the Embedder interface so the clustering engine never knows which
// backend produced a vector.
package embed

import (
	"context"
	"math"
)

// Embedder produces a vector embedding for a piece of text.
type Embedder interface {
	// Available reports whether the backend can serve requests right now.
	Available() bool
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder embeds several texts in one call. On success the result has
// one vector per input, index-aligned.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CosineSimilarity returns the cosine of the angle between a and b: 1 for
// parallel vectors, 0 for orthogonal, -1 for opposed. Mismatched lengths,
// empty inputs and zero vectors all yield 0. The accumulation and the result
// stay in float64 so threshold comparisons downstream see full precision.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
