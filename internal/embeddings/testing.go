package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"
)

// HashEmbedder is a deterministic Provider for tests. Each lower-cased word
// is hashed into one of the vector's buckets and the result is normalized,
// so texts sharing words land close together.
type HashEmbedder struct {
	dim int

	mu            sync.Mutex
	documentCalls int
	queryCalls    int

	// Err is returned from every call when set.
	Err error
	// DropLast makes EmbedDocuments return one vector fewer than texts.
	DropLast bool
	// Delay blocks each call, honouring ctx.
	Delay time.Duration
}

// NewHashEmbedder creates a HashEmbedder producing dim-sized vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Vector returns the embedding of text without recording a call.
func (h *HashEmbedder) Vector(text string) []float32 {
	v := make([]float32, h.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(word))
		v[f.Sum32()%uint32(h.dim)]++
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func (h *HashEmbedder) wait(ctx context.Context) error {
	if h.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(h.Delay):
		return nil
	}
}

// EmbedDocuments generates embeddings for multiple texts.
func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.documentCalls++
	h.mu.Unlock()

	if err := h.wait(ctx); err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}

	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, h.Vector(t))
	}
	if h.DropLast && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

// EmbedQuery generates an embedding for a single query.
func (h *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	h.queryCalls++
	h.mu.Unlock()

	if err := h.wait(ctx); err != nil {
		return nil, err
	}
	if h.Err != nil {
		return nil, h.Err
	}
	return h.Vector(text), nil
}

// Dimension returns the vector size.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Close is a no-op.
func (h *HashEmbedder) Close() error { return nil }

// Calls returns the number of EmbedDocuments and EmbedQuery calls.
func (h *HashEmbedder) Calls() (documents, queries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.documentCalls, h.queryCalls
}
