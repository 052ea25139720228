// Package tenant owns the lifecycle of tenants and their collections.
//
// A tenant is an opaque token; each token maps to exactly one vector store
// collection named by sanitize.CollectionName. The Registry is the only
// component that creates or drops collections; everything else resolves a
// token to a Handle and fails with ErrTenantNotFound when it is missing.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

// registerAttempts bounds token regeneration on collection name collisions.
const registerAttempts = 3

// Errors for registry operations.
var (
	ErrTenantNotFound = fmt.Errorf("tenant %w", errdefs.ErrNotFound)
	ErrTenantExists   = fmt.Errorf("tenant %w", errdefs.ErrAlreadyExists)
)

// Handle identifies a tenant's collection.
type Handle struct {
	Token      string
	Collection string
}

// DocumentRemover deletes a tenant's catalog entries when it is dropped.
type DocumentRemover interface {
	RemoveTenant(ctx context.Context, tenant string) (int, error)
}

// Registry creates, resolves and drops tenants.
type Registry struct {
	store     vectorstore.Store
	documents DocumentRemover
	dim       int
	logger    *logging.Logger

	// newToken generates tenant tokens. Replaced in tests.
	newToken func() string

	mu      sync.RWMutex
	handles map[string]Handle // key: token

	locks keyedMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithTokenSource overrides token generation.
func WithTokenSource(fn func() string) Option {
	return func(r *Registry) { r.newToken = fn }
}

// NewRegistry creates a registry whose collections hold vectors of size dim.
// documents may be nil when no catalog is in use.
func NewRegistry(store vectorstore.Store, documents DocumentRemover, dim int, logger *logging.Logger, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errdefs.InvalidInput("tenant registry requires a vector store")
	}
	if dim <= 0 {
		return nil, errdefs.InvalidInput("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{
		store:     store,
		documents: documents,
		dim:       dim,
		logger:    logger.Named("tenant"),
		newToken:  uuid.NewString,
		handles:   make(map[string]Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CollectionName returns the collection backing token. Every component
// derives names through this call.
func CollectionName(token string) string {
	return sanitize.CollectionName(token)
}

// Register creates a tenant with a fresh token and an empty collection.
func (r *Registry) Register(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		token := r.newToken()
		h, err := r.create(ctx, token)
		if err == nil {
			r.logger.Info(logging.WithTenant(ctx, token), "tenant registered",
				zap.String("collection", h.Collection),
			)
			return token, nil
		}
		if !errors.Is(err, errdefs.ErrAlreadyExists) {
			return "", err
		}
		r.logger.Warn(ctx, "tenant collection name collision, regenerating token",
			zap.Int("attempt", attempt),
			zap.String("collection", h.Collection),
		)
	}
	return "", fmt.Errorf("%w: no free collection name after %d attempts", ErrTenantExists, registerAttempts)
}

func (r *Registry) create(ctx context.Context, token string) (Handle, error) {
	if err := sanitize.ValidateToken(token); err != nil {
		return Handle{}, err
	}
	h := Handle{Token: token, Collection: CollectionName(token)}

	unlock := r.locks.Lock(token)
	defer unlock()

	if err := r.store.CreateCollection(ctx, h.Collection, r.dim); err != nil {
		return h, err
	}

	r.mu.Lock()
	r.handles[token] = h
	r.mu.Unlock()
	return h, nil
}

// Exists reports whether token has a collection.
func (r *Registry) Exists(ctx context.Context, token string) (bool, error) {
	if err := sanitize.ValidateToken(token); err != nil {
		return false, err
	}
	name := CollectionName(token)

	// Held across the existence check and the cache write so a concurrent
	// Drop cannot land in between and leave a stale handle behind.
	unlock := r.locks.Lock(token)
	defer unlock()

	ok, err := r.store.CollectionExists(ctx, name)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.handles[token] = Handle{Token: token, Collection: name}
	} else {
		delete(r.handles, token)
	}
	return ok, nil
}

// Resolve returns the handle for an existing tenant. It never creates one.
func (r *Registry) Resolve(ctx context.Context, token string) (Handle, error) {
	if err := sanitize.ValidateToken(token); err != nil {
		return Handle{}, err
	}

	r.mu.RLock()
	h, ok := r.handles[token]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	exists, err := r.Exists(ctx, token)
	if err != nil {
		return Handle{}, err
	}
	if !exists {
		return Handle{}, ErrTenantNotFound
	}
	return Handle{Token: token, Collection: CollectionName(token)}, nil
}

// Drop deletes the tenant's collection and catalog entries. Dropping an
// unknown tenant returns ErrTenantNotFound.
func (r *Registry) Drop(ctx context.Context, token string) error {
	if err := sanitize.ValidateToken(token); err != nil {
		return err
	}
	name := CollectionName(token)

	unlock := r.locks.Lock(token)
	defer unlock()

	r.mu.Lock()
	delete(r.handles, token)
	r.mu.Unlock()

	if err := r.store.DeleteCollection(ctx, name); err != nil {
		if !errors.Is(err, errdefs.ErrNotFound) {
			return err
		}
		// A previous drop may have removed the collection but failed on
		// the catalog; finish that cleanup.
		if n, rmErr := r.removeDocuments(ctx, token); rmErr != nil {
			r.logger.Warn(logging.WithTenant(ctx, token), "failed to remove catalog entries of missing tenant", zap.Error(rmErr))
		} else if n > 0 {
			r.logger.Info(logging.WithTenant(ctx, token), "removed orphaned catalog entries", zap.Int("documents", n))
		}
		return ErrTenantNotFound
	}

	if _, err := r.removeDocuments(ctx, token); err != nil {
		return fmt.Errorf("collection dropped, removing catalog entries: %w", err)
	}

	r.logger.Info(logging.WithTenant(ctx, token), "tenant dropped", zap.String("collection", name))
	return nil
}

func (r *Registry) removeDocuments(ctx context.Context, token string) (int, error) {
	if r.documents == nil {
		return 0, nil
	}
	return r.documents.RemoveTenant(ctx, token)
}
