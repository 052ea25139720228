package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

func TestResilient_OpensAfterFailures(t *testing.T) {
	inner := NewHashEmbedder(8)
	inner.Err = errors.New("connection refused")

	r := NewResilient(inner, BreakerConfig{MinRequests: 2, FailureRatio: 0.5, Timeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := r.EmbedQuery(context.Background(), "q")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := r.EmbedDocuments(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.ErrorIs(t, err, errdefs.ErrUpstream)

	_, queries := inner.Calls()
	assert.Equal(t, 2, queries, "open breaker must not reach the provider")
}

func TestResilient_CancellationDoesNotTrip(t *testing.T) {
	inner := NewHashEmbedder(8)
	r := NewResilient(inner, BreakerConfig{MinRequests: 1, FailureRatio: 0.1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 3; i++ {
		_, err := r.EmbedQuery(ctx, "q")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, r.State())
}

func TestResilient_PassesResults(t *testing.T) {
	inner := NewHashEmbedder(8)
	r := NewResilient(inner, BreakerConfig{})

	v, err := r.EmbedQuery(context.Background(), "flood cover")
	require.NoError(t, err)
	assert.Equal(t, inner.Vector("flood cover"), v)

	vs, err := r.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vs, 2)
}
