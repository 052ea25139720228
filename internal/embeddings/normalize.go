package embeddings

import (
	"context"
	"math"
)

// Normalized scales every vector to unit length. The vector stores report
// squared L2 distance, which only agrees with cosine ranking, and between
// backends, when vectors are unit length. Not every TEI or OpenAI-compatible
// model normalizes its output.
type Normalized struct {
	Provider
}

// NewNormalized wraps p.
func NewNormalized(p Provider) *Normalized {
	return &Normalized{Provider: p}
}

// EmbedDocuments generates unit-length embeddings for multiple texts.
func (n *Normalized) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := n.Provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vectors {
		normalize(v)
	}
	return vectors, nil
}

// EmbedQuery generates a unit-length embedding for a single query.
func (n *Normalized) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := n.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	normalize(v)
	return v, nil
}

// normalize scales v in place. Zero vectors are left unchanged.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.Abs(sum-1) < 1e-6 {
		return
	}
	scale := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= scale
	}
}
