package embeddings

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batcher splits EmbedDocuments calls into fixed-size batches embedded
// concurrently. Results are concatenated in input order. A batch that
// returns the wrong number of vectors is passed through as-is, so the
// caller's count check sees the mismatch.
type Batcher struct {
	Provider
	size        int
	concurrency int
}

// NewBatcher wraps p. Non-positive size or concurrency default to 64 and 4.
func NewBatcher(p Provider, size, concurrency int) *Batcher {
	if size <= 0 {
		size = 64
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Batcher{Provider: p, size: size, concurrency: concurrency}
}

// EmbedDocuments generates embeddings for multiple texts.
func (b *Batcher) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.size {
		return b.Provider.EmbedDocuments(ctx, texts)
	}

	batches := make([][][]float32, (len(texts)+b.size-1)/b.size)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range batches {
		start := i * b.size
		end := min(start+b.size, len(texts))
		g.Go(func() error {
			vectors, err := b.Provider.EmbedDocuments(gctx, texts[start:end])
			if err != nil {
				return err
			}
			batches[i] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out, nil
}
