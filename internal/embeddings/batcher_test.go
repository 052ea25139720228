package embeddings

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("chunk number %d", i)
	}
	return out
}

func TestBatcher_PreservesOrder(t *testing.T) {
	inner := NewHashEmbedder(16)
	b := NewBatcher(inner, 3, 4)

	in := texts(10)
	vectors, err := b.EmbedDocuments(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, vectors, len(in))

	for i, text := range in {
		assert.Equal(t, inner.Vector(text), vectors[i], "vector %d out of order", i)
	}

	docs, _ := inner.Calls()
	assert.Equal(t, 4, docs)
}

func TestBatcher_SingleBatchPassesThrough(t *testing.T) {
	inner := NewHashEmbedder(8)
	b := NewBatcher(inner, 64, 4)

	_, err := b.EmbedDocuments(context.Background(), texts(5))
	require.NoError(t, err)

	docs, _ := inner.Calls()
	assert.Equal(t, 1, docs)
}

func TestBatcher_NeverPads(t *testing.T) {
	inner := NewHashEmbedder(8)
	inner.DropLast = true
	b := NewBatcher(inner, 2, 2)

	vectors, err := b.EmbedDocuments(context.Background(), texts(6))
	require.NoError(t, err)
	assert.Len(t, vectors, 3, "each short batch must surface, not be padded")
}

func TestBatcher_Error(t *testing.T) {
	inner := NewHashEmbedder(8)
	inner.Err = errors.New("boom")
	b := NewBatcher(inner, 2, 2)

	_, err := b.EmbedDocuments(context.Background(), texts(6))
	assert.EqualError(t, err, "boom")
}

func TestBatcher_Defaults(t *testing.T) {
	b := NewBatcher(NewHashEmbedder(4), 0, -1)
	assert.Equal(t, 64, b.size)
	assert.Equal(t, 4, b.concurrency)
}
