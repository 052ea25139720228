package vectorstore_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/config"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

func TestInstrumented_RecordsOperations(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewStore(config.VectorStoreConfig{Provider: "chromem"}, nil)
	require.NoError(t, err)
	defer store.Close()

	errsBefore := testutil.ToFloat64(vectorstore.OperationErrors.WithLabelValues("chromem", "search"))
	insertedBefore := testutil.ToFloat64(vectorstore.RowsWritten.WithLabelValues("chromem", "inserted"))
	deletedBefore := testutil.ToFloat64(vectorstore.RowsWritten.WithLabelValues("chromem", "deleted"))

	require.NoError(t, store.CreateCollection(ctx, "tenant_metrics", 4))
	require.NoError(t, store.Insert(ctx, "tenant_metrics", []vectorstore.Row{
		row("a", 1, unit(4, 0)),
		row("a", 2, unit(4, 1)),
	}))
	_, err = store.Search(ctx, "tenant_missing", unit(4, 0), 1, nil)
	require.Error(t, err)
	n, err := store.DeleteByFilename(ctx, "tenant_metrics", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, errsBefore+1, testutil.ToFloat64(vectorstore.OperationErrors.WithLabelValues("chromem", "search")))
	assert.Equal(t, insertedBefore+2, testutil.ToFloat64(vectorstore.RowsWritten.WithLabelValues("chromem", "inserted")))
	assert.Equal(t, deletedBefore+2, testutil.ToFloat64(vectorstore.RowsWritten.WithLabelValues("chromem", "deleted")))
}

func TestInstrumented_Health(t *testing.T) {
	store, err := vectorstore.NewStore(config.VectorStoreConfig{}, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Health(context.Background()))
	assert.Equal(t, float64(1), testutil.ToFloat64(vectorstore.HealthStatus))
}

func TestNewStore_UnknownProvider(t *testing.T) {
	_, err := vectorstore.NewStore(config.VectorStoreConfig{Provider: "milvus"}, nil)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
