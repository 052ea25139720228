package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/catalog"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/retrieval"
	"github.com/fyrsmithlabs/tenantrag/internal/telemetry"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

const dim = 32

type harness struct {
	engine   *retrieval.Engine
	registry *tenant.Registry
	store    *vectorstore.ChromemStore
	catalog  *catalog.Catalog
	embedder *embeddings.HashEmbedder
	tel      *telemetry.TestTelemetry
	token    string
}

func newHarness(t *testing.T, cfg retrieval.Config) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, nil)
	require.NoError(t, err)
	cat, err := catalog.Open(catalog.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	registry, err := tenant.NewRegistry(store, cat, dim, nil)
	require.NoError(t, err)
	token, err := registry.Register(ctx)
	require.NoError(t, err)

	h := &harness{
		registry: registry,
		store:    store,
		catalog:  cat,
		embedder: embeddings.NewHashEmbedder(dim),
		tel:      telemetry.NewTestTelemetry(),
		token:    token,
	}
	h.engine, err = retrieval.New(retrieval.Deps{
		Tenants:   registry,
		Embedder:  h.embedder,
		Store:     store,
		Documents: cat,
		Tracer:    h.tel.Tracer("retrieval_test"),
		Meter:     h.tel.Meter("retrieval_test"),
	}, cfg)
	require.NoError(t, err)
	return h
}

// put stores texts as chunks of filename. committed controls whether the
// catalog marks the document ready.
func (h *harness) put(t *testing.T, filename string, committed bool, texts ...string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, h.catalog.Claim(ctx, h.token, filename))
	rows := make([]vectorstore.Row, len(texts))
	for i, text := range texts {
		rows[i] = vectorstore.Row{
			ID:       uuid.NewString(),
			Vector:   h.embedder.Vector(text),
			Filename: filename,
			Page:     i + 1,
			Text:     text,
		}
	}
	require.NoError(t, h.store.Insert(ctx, tenant.CollectionName(h.token), rows))
	if committed {
		require.NoError(t, h.catalog.Commit(ctx, h.token, filename, len(texts), len(texts)))
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := retrieval.New(retrieval.Deps{}, retrieval.Config{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestSearch_ExactMatchIsTopHit(t *testing.T) {
	h := newHarness(t, retrieval.Config{})
	h.put(t, "greek", true, "alpha beta gamma", "delta epsilon zeta", "eta theta iota")

	hits, err := h.engine.Search(context.Background(), h.token, "alpha beta gamma", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "alpha beta gamma", hits[0].Text)
	assert.Equal(t, "greek", hits[0].Filename)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	h.tel.AssertSpanExists(t, "retrieval.Search")
}

func TestSearch_OrderedByDistance(t *testing.T) {
	h := newHarness(t, retrieval.Config{})
	h.put(t, "a", true, "red green blue", "red green", "red", "cyan magenta yellow")

	hits, err := h.engine.Search(context.Background(), h.token, "red green blue", 4, nil)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestSearch_FilterIsSubset(t *testing.T) {
	h := newHarness(t, retrieval.Config{})
	h.put(t, "a", true, "shared words here", "more shared words")
	h.put(t, "b", true, "shared words here too")
	h.put(t, "c", true, "shared words again")

	hits, err := h.engine.Search(context.Background(), h.token, "shared words", 10, []string{"b", "c", "b"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.Contains(t, []string{"b", "c"}, hit.Filename)
	}
}

func TestSearch_TopK(t *testing.T) {
	h := newHarness(t, retrieval.Config{MaxTopK: 2})
	h.put(t, "a", true, "one", "two", "three", "four")

	hits, err := h.engine.Search(context.Background(), h.token, "one", 1, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = h.engine.Search(context.Background(), h.token, "one", 50, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "top_k is clamped to the maximum")

	_, err = h.engine.Search(context.Background(), h.token, "one", 0, nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestSearch_InvalidQuery(t *testing.T) {
	h := newHarness(t, retrieval.Config{})

	_, err := h.engine.Search(context.Background(), h.token, "   ", 3, nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestSearch_UnknownTenant(t *testing.T) {
	h := newHarness(t, retrieval.Config{})

	_, err := h.engine.Search(context.Background(), "nobody", "query", 3, nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestSearch_EmptyCollection(t *testing.T) {
	h := newHarness(t, retrieval.Config{})

	hits, err := h.engine.Search(context.Background(), h.token, "anything", 3, nil)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSearch_HidesPendingDocuments(t *testing.T) {
	h := newHarness(t, retrieval.Config{})
	h.put(t, "ready", true, "apples and pears")
	h.put(t, "inflight", false, "apples and oranges")

	hits, err := h.engine.Search(context.Background(), h.token, "apples", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ready", hits[0].Filename)

	hits, err = h.engine.Search(context.Background(), h.token, "apples", 10, []string{"inflight"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, h.catalog.Commit(context.Background(), h.token, "inflight", 1, 1))
	hits, err = h.engine.Search(context.Background(), h.token, "apples", 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

// queryHook runs onQuery before delegating EmbedQuery.
type queryHook struct {
	embeddings.Embedder
	onQuery func()
}

func (q *queryHook) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	q.onQuery()
	return q.Embedder.EmbedQuery(ctx, text)
}

func TestSearch_HidesDocumentsClaimedMidQuery(t *testing.T) {
	h := newHarness(t, retrieval.Config{})
	h.put(t, "ready", true, "apples and pears")

	engine, err := retrieval.New(retrieval.Deps{
		Tenants: h.registry,
		Embedder: &queryHook{
			Embedder: h.embedder,
			onQuery: func() {
				h.put(t, "inflight", false, "apples and oranges")
			},
		},
		Store:     h.store,
		Documents: h.catalog,
	}, retrieval.Config{})
	require.NoError(t, err)

	hits, err := engine.Search(context.Background(), h.token, "apples", 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ready", hits[0].Filename)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	h := newHarness(t, retrieval.Config{})
	h.put(t, "a", true, "text")
	h.embedder.Err = errors.New("provider down")

	_, err := h.engine.Search(context.Background(), h.token, "text", 3, nil)
	assert.ErrorIs(t, err, errdefs.ErrUpstream)
}
