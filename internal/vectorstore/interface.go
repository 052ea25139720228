// Package vectorstore stores chunk vectors in per-tenant collections.
//
// Two backends implement Store: ChromemStore (embedded chromem-go, the
// default) and QdrantStore (external Qdrant over gRPC). Callers pass
// precomputed vectors; the store never embeds text itself.
//
// Distances are squared Euclidean (L2) distances between vectors; lower is
// closer. Both backends report the same metric so results are comparable.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = fmt.Errorf("collection %w", errdefs.ErrNotFound)

	// ErrCollectionExists is returned when attempting to create an existing collection.
	ErrCollectionExists = fmt.Errorf("collection %w", errdefs.ErrAlreadyExists)

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = fmt.Errorf("invalid vectorstore configuration: %w", errdefs.ErrInvalidInput)

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = fmt.Errorf("vector dimension mismatch: %w", errdefs.ErrInvalidInput)

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = fmt.Errorf("failed to connect to Qdrant: %w", errdefs.ErrUpstream)
)

// Payload keys shared by both backends.
const (
	fieldFilename = "filename"
	fieldPage     = "page"
	fieldText     = "text"
)

// Row is one chunk to store.
type Row struct {
	// ID is a UUID string, unique within the collection.
	ID       string
	Vector   []float32
	Filename string
	Page     int
	Text     string
}

// Hit is one search result.
type Hit struct {
	ID string
	// Distance is the squared L2 distance to the query vector.
	Distance float32
	Filename string
	Page     int
	Text     string
}

// Store is the interface for vector storage operations.
type Store interface {
	// CreateCollection creates an empty collection for vectors of size dim.
	// Returns ErrCollectionExists if the name is taken.
	CreateCollection(ctx context.Context, name string, dim int) error

	// DeleteCollection removes a collection and all its rows.
	// Returns ErrCollectionNotFound if it does not exist.
	DeleteCollection(ctx context.Context, name string) error

	// CollectionExists reports whether a collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// Insert writes rows. Either every row becomes visible or none do.
	Insert(ctx context.Context, name string, rows []Row) error

	// Search returns up to k rows nearest to vec, ascending by distance.
	// A non-empty filenames restricts hits to those documents.
	Search(ctx context.Context, name string, vec []float32, k int, filenames []string) ([]Hit, error)

	// DeleteByFilename removes every row of a document and returns how many
	// were removed.
	DeleteByFilename(ctx context.Context, name, filename string) (int, error)

	// Count returns the number of rows in a collection.
	Count(ctx context.Context, name string) (int, error)

	// Close releases backend resources.
	Close() error
}

// HealthChecker is implemented by stores that can check their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

func validateName(name string) error {
	return sanitize.ValidateCollectionName(name)
}

func validateRows(rows []Row, dim int) error {
	if dim == 0 && len(rows) > 0 {
		dim = len(rows[0].Vector)
	}
	for i, r := range rows {
		if r.ID == "" {
			return errdefs.InvalidInput("row %d has no id", i)
		}
		if len(r.Vector) != dim {
			return fmt.Errorf("%w: row %d has %d, collection has %d", ErrDimensionMismatch, i, len(r.Vector), dim)
		}
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: row %d has an empty vector", ErrDimensionMismatch, i)
		}
	}
	return nil
}

func validateQuery(vec []float32, dim, k int) error {
	if k < 1 {
		return errdefs.InvalidInput("k must be positive, got %d", k)
	}
	if len(vec) == 0 || (dim > 0 && len(vec) != dim) {
		return fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(vec), dim)
	}
	return nil
}
