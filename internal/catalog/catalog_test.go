package catalog_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/catalog"
	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(catalog.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := catalog.Open(catalog.Config{}, nil)
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestClaimCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.Claim(ctx, "t1", "policy"))

	exists, err := c.Exists(ctx, "t1", "policy")
	require.NoError(t, err)
	assert.True(t, exists)

	pending, err := c.Pending(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"policy"}, pending)

	listed, err := c.List(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, listed, "pending documents are not listed")

	require.NoError(t, c.Commit(ctx, "t1", "policy", 3, 7))

	doc, err := c.Get(ctx, "t1", "policy")
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusReady, doc.Status)
	assert.Equal(t, 3, doc.Pages)
	assert.Equal(t, 7, doc.Chunks)

	listed, err = c.List(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"policy"}, listed)

	pending, err = c.Pending(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestClaim_Duplicate(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.Claim(ctx, "t1", "policy"))

	err := c.Claim(ctx, "t1", "policy")
	assert.ErrorIs(t, err, catalog.ErrDocumentExists)
	assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)

	require.NoError(t, c.Claim(ctx, "t2", "policy"), "filenames are scoped per tenant")
}

func TestClaim_ConcurrentFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Claim(ctx, "t1", "race"); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, errdefs.ErrAlreadyExists)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestCommit_WithoutClaim(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	err := c.Commit(ctx, "t1", "ghost", 1, 1)
	assert.ErrorIs(t, err, catalog.ErrDocumentNotFound)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.Claim(ctx, "t1", "draft"))
	require.NoError(t, c.Release(ctx, "t1", "draft"))

	exists, err := c.Exists(ctx, "t1", "draft")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Claim(ctx, "t1", "draft"), "released filenames can be claimed again")

	require.NoError(t, c.Commit(ctx, "t1", "draft", 1, 1))
	require.NoError(t, c.Release(ctx, "t1", "draft"))
	exists, err = c.Exists(ctx, "t1", "draft")
	require.NoError(t, err)
	assert.True(t, exists, "release never drops committed documents")
}

func TestGet_Missing(t *testing.T) {
	_, err := newTestCatalog(t).Get(context.Background(), "t1", "nope")
	assert.ErrorIs(t, err, catalog.ErrDocumentNotFound)
}

func TestList_SortedAndLimited(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, c.Claim(ctx, "t1", name))
		require.NoError(t, c.Commit(ctx, "t1", name, 1, 1))
	}
	require.NoError(t, c.Claim(ctx, "t2", "other"))
	require.NoError(t, c.Commit(ctx, "t2", "other", 1, 1))

	names, err := c.List(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	names, err = c.List(ctx, "t1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	ready, err := c.Ready(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, ready, 3)

	names, err = c.List(ctx, "unknown", 0)
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.Claim(ctx, "t1", "a"))
	require.NoError(t, c.Commit(ctx, "t1", "a", 1, 1))

	removed, err := c.Remove(ctx, "t1", "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Remove(ctx, "t1", "a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveTenant(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Claim(ctx, "t1", fmt.Sprintf("doc%d", i)))
	}
	require.NoError(t, c.Claim(ctx, "t2", "keep"))

	n, err := c.RemoveTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	exists, err := c.Exists(ctx, "t2", "keep")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOpen_PersistentFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := catalog.Open(catalog.Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Claim(ctx, "t1", "kept"))
	require.NoError(t, c.Commit(ctx, "t1", "kept", 2, 4))
	require.NoError(t, c.Close())

	reopened, err := catalog.Open(catalog.Config{Path: path}, nil)
	require.NoError(t, err)
	defer reopened.Close()

	names, err := reopened.List(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, names)
}
