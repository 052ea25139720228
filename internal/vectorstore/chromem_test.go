package vectorstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

const testCollection = "tenant_abc"

// unit returns the i-th standard basis vector of length dim.
func unit(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func row(filename string, page int, vec []float32) vectorstore.Row {
	return vectorstore.Row{
		ID:       uuid.NewString(),
		Vector:   vec,
		Filename: filename,
		Page:     page,
		Text:     fmt.Sprintf("%s page %d", filename, page),
	}
}

func newMemoryStore(t *testing.T) *vectorstore.ChromemStore {
	t.Helper()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestChromemStore_CollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	exists, err := store.CollectionExists(ctx, testCollection)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))

	exists, err = store.CollectionExists(ctx, testCollection)
	require.NoError(t, err)
	assert.True(t, exists)

	err = store.CreateCollection(ctx, testCollection, 4)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionExists)
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)

	require.NoError(t, store.DeleteCollection(ctx, testCollection))

	err = store.DeleteCollection(ctx, testCollection)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestChromemStore_InvalidNames(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	for _, name := range []string{"", "Tenant", "../etc", "has space"} {
		t.Run(name, func(t *testing.T) {
			err := store.CreateCollection(ctx, name, 4)
			assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
		})
	}

	err := store.CreateCollection(ctx, testCollection, 0)
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestChromemStore_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))

	rows := []vectorstore.Row{
		row("a", 1, unit(4, 0)),
		row("a", 2, unit(4, 1)),
		row("b", 1, unit(4, 2)),
	}
	require.NoError(t, store.Insert(ctx, testCollection, rows))

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := store.Search(ctx, testCollection, unit(4, 0), 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, rows[0].ID, hits[0].ID)
	assert.Equal(t, "a", hits[0].Filename)
	assert.Equal(t, 1, hits[0].Page)
	assert.Equal(t, "a page 1", hits[0].Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
	assert.InDelta(t, 2, hits[1].Distance, 1e-5)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)
}

func TestChromemStore_SearchCapsAtCount(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))

	hits, err := store.Search(ctx, testCollection, unit(4, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, store.Insert(ctx, testCollection, []vectorstore.Row{
		row("a", 1, unit(4, 0)),
		row("a", 2, unit(4, 1)),
	}))

	hits, err = store.Search(ctx, testCollection, unit(4, 0), 50, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestChromemStore_SearchFilenameFilter(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))

	require.NoError(t, store.Insert(ctx, testCollection, []vectorstore.Row{
		row("a", 1, unit(4, 0)),
		row("b", 1, unit(4, 1)),
		row("c", 1, unit(4, 2)),
	}))

	hits, err := store.Search(ctx, testCollection, unit(4, 0), 3, []string{"b", "c", "b"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "a", h.Filename)
	}

	hits, err = store.Search(ctx, testCollection, unit(4, 0), 3, []string{"missing"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemStore_DimensionChecks(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))

	err := store.Insert(ctx, testCollection, []vectorstore.Row{row("a", 1, unit(3, 0))})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	_, err = store.Search(ctx, testCollection, unit(8, 0), 1, nil)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	_, err = store.Search(ctx, testCollection, unit(4, 0), 0, nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)

	n, err := store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChromemStore_MissingCollection(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)

	err := store.Insert(ctx, testCollection, []vectorstore.Row{row("a", 1, unit(4, 0))})
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	_, err = store.Search(ctx, testCollection, unit(4, 0), 1, nil)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	_, err = store.DeleteByFilename(ctx, testCollection, "a")
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)

	_, err = store.Count(ctx, testCollection)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestChromemStore_DeleteByFilename(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))

	require.NoError(t, store.Insert(ctx, testCollection, []vectorstore.Row{
		row("a", 1, unit(4, 0)),
		row("a", 2, unit(4, 1)),
		row("b", 1, unit(4, 2)),
	}))

	deleted, err := store.DeleteByFilename(ctx, testCollection, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	deleted, err = store.DeleteByFilename(ctx, testCollection, "a")
	require.NoError(t, err)
	assert.Zero(t, deleted)

	hits, err := store.Search(ctx, testCollection, unit(4, 0), 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].Filename)

	_, err = store.DeleteByFilename(ctx, testCollection, "")
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestChromemStore_SearchDuringDeletes(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))
	require.NoError(t, store.Insert(ctx, testCollection, []vectorstore.Row{
		row("keep", 1, unit(4, 0)),
		row("keep", 2, unit(4, 1)),
	}))

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)

	writeErrs := make(chan error, rounds*2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			writeErrs <- store.Insert(ctx, testCollection, []vectorstore.Row{
				row("churn", 1, unit(4, 2)),
				row("churn", 2, unit(4, 3)),
				row("churn", 3, unit(4, 3)),
			})
			_, err := store.DeleteByFilename(ctx, testCollection, "churn")
			writeErrs <- err
		}
	}()

	searchErrs := make(chan error, rounds*3)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			hits, err := store.Search(ctx, testCollection, unit(4, 0), 5, nil)
			searchErrs <- err
			if err == nil && len(hits) < 2 {
				searchErrs <- fmt.Errorf("round %d: got %d hits, want at least 2", i, len(hits))
			}
			_, err = store.Search(ctx, testCollection, unit(4, 2), 5, []string{"keep", "churn"})
			searchErrs <- err
		}
	}()

	wg.Wait()
	close(writeErrs)
	close(searchErrs)
	for err := range writeErrs {
		require.NoError(t, err)
	}
	for err := range searchErrs {
		require.NoError(t, err)
	}
}

func TestChromemStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	require.NoError(t, store.CreateCollection(ctx, "tenant_one", 4))
	require.NoError(t, store.CreateCollection(ctx, "tenant_two", 4))

	require.NoError(t, store.Insert(ctx, "tenant_one", []vectorstore.Row{row("shared", 1, unit(4, 0))}))

	hits, err := store.Search(ctx, "tenant_two", unit(4, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, store.DeleteCollection(ctx, "tenant_two"))
	n, err := store.Count(ctx, "tenant_one")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChromemStore_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.CreateCollection(ctx, testCollection, 4))
	require.NoError(t, store.Insert(ctx, testCollection, []vectorstore.Row{
		row("a", 3, unit(4, 1)),
	}))
	require.NoError(t, store.Health(ctx))
	require.NoError(t, store.Close())

	reopened, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{Path: dir}, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.CollectionExists(ctx, testCollection)
	require.NoError(t, err)
	assert.True(t, exists)

	hits, err := reopened.Search(ctx, testCollection, unit(4, 1), 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 3, hits[0].Page)
	assert.Equal(t, "a", hits[0].Filename)

	require.NoError(t, reopened.Insert(ctx, testCollection, []vectorstore.Row{row("b", 1, unit(4, 2))}))
	err = reopened.Insert(ctx, testCollection, []vectorstore.Row{row("c", 1, unit(2, 0))})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestSortHits(t *testing.T) {
	hits := []vectorstore.Hit{
		{ID: "c", Distance: 0.5},
		{ID: "b", Distance: 0.1},
		{ID: "a", Distance: 0.5},
	}
	vectorstore.SortHits(hits)
	assert.Equal(t, []string{"b", "a", "c"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}
