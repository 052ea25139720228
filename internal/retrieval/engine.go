// Package retrieval answers similarity queries against a tenant's collection.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/tenantrag/internal/retrieval"

const (
	DefaultTopK    = 5
	DefaultMaxTopK = 100
)

// Resolver maps tenant tokens to collections.
type Resolver interface {
	Resolve(ctx context.Context, token string) (tenant.Handle, error)
}

// Visibility reports which documents may be searched.
type Visibility interface {
	Pending(ctx context.Context, tenant string) ([]string, error)
	Ready(ctx context.Context, tenant string) ([]string, error)
}

// Config tunes the engine. Zero timeouts are unbounded.
type Config struct {
	MaxTopK      int
	EmbedTimeout time.Duration
	StoreTimeout time.Duration
}

// Deps are the engine's collaborators.
type Deps struct {
	Tenants  Resolver
	Embedder embeddings.Embedder
	Store    vectorstore.Store
	// Documents hides chunks of documents that are still being ingested.
	// Optional.
	Documents Visibility
	Logger    *logging.Logger
	Tracer    trace.Tracer
	Meter     metric.Meter
}

// Engine runs similarity searches.
type Engine struct {
	tenants   Resolver
	embedder  embeddings.Embedder
	store     vectorstore.Store
	documents Visibility
	cfg       Config
	logger    *logging.Logger
	tracer    trace.Tracer
	hits      metric.Int64Histogram
}

// New creates an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Tenants == nil || deps.Embedder == nil || deps.Store == nil {
		return nil, errdefs.InvalidInput("retrieval engine requires tenants, embedder and store")
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}

	hits, err := deps.Meter.Int64Histogram(
		"ragd.retrieval.hits",
		metric.WithDescription("Number of hits returned per search"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hits histogram: %w", err)
	}

	return &Engine{
		tenants:   deps.Tenants,
		embedder:  deps.Embedder,
		store:     deps.Store,
		documents: deps.Documents,
		cfg:       cfg,
		logger:    deps.Logger.Named("retrieval"),
		tracer:    deps.Tracer,
		hits:      hits,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Search returns up to topK hits nearest to query, ascending by distance.
// A non-empty filenames restricts hits to those documents. topK above the
// configured maximum is clamped.
func (e *Engine) Search(ctx context.Context, token, query string, topK int, filenames []string) ([]vectorstore.Hit, error) {
	ctx = logging.WithTenant(ctx, token)
	ctx, span := e.tracer.Start(ctx, "retrieval.Search")
	defer span.End()

	span.SetAttributes(
		attribute.Int("top_k", topK),
		attribute.Int("filename_filters", len(filenames)),
	)

	hits, err := e.search(ctx, token, query, topK, filenames)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.hits.Record(ctx, int64(len(hits)))
	span.SetAttributes(attribute.Int("hits", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

func (e *Engine) search(ctx context.Context, token, query string, topK int, filenames []string) ([]vectorstore.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errdefs.InvalidInput("query is required")
	}
	if topK < 1 {
		return nil, errdefs.InvalidInput("top_k must be at least 1, got %d", topK)
	}
	if topK > e.cfg.MaxTopK {
		topK = e.cfg.MaxTopK
	}

	h, err := e.tenants.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	filter, ok, err := e.visible(ctx, token, dedupe(filenames))
	if err != nil {
		return nil, err
	}
	if !ok {
		return []vectorstore.Hit{}, nil
	}

	ectx, cancel := withTimeout(ctx, e.cfg.EmbedTimeout)
	vec, err := e.embedder.EmbedQuery(ectx, query)
	cancel()
	if err != nil {
		return nil, errdefs.Upstream("embedding query", err)
	}

	sctx, cancel := withTimeout(ctx, e.cfg.StoreTimeout)
	hits, err := e.store.Search(sctx, h.Collection, vec, topK, filter)
	cancel()
	if err != nil {
		return nil, errdefs.Upstream("searching collection", err)
	}

	// Documents claimed while the query was embedded or searched were not
	// known to the filter above; commit follows insert, so only hits of
	// documents that are ready now are complete.
	hits, err = e.committed(ctx, token, hits)
	if err != nil {
		return nil, err
	}

	vectorstore.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	e.logger.Debug(ctx, "search completed", zap.Int("hits", len(hits)), zap.Int("top_k", topK))
	return hits, nil
}

// visible narrows filenames to documents whose ingestion has committed.
// While nothing is in flight the caller's filter is used as is. It returns
// false when no document can match.
func (e *Engine) visible(ctx context.Context, token string, filenames []string) ([]string, bool, error) {
	if e.documents == nil {
		return filenames, true, nil
	}
	pending, err := e.documents.Pending(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if len(pending) == 0 {
		return filenames, true, nil
	}

	ready, err := e.documents.Ready(ctx, token)
	if err != nil {
		return nil, false, err
	}
	if len(filenames) > 0 {
		ready = intersect(ready, filenames)
	}
	return ready, len(ready) > 0, nil
}

// committed drops hits whose document has not finished ingesting.
func (e *Engine) committed(ctx context.Context, token string, hits []vectorstore.Hit) ([]vectorstore.Hit, error) {
	if e.documents == nil || len(hits) == 0 {
		return hits, nil
	}
	ready, err := e.documents.Ready(ctx, token)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ready))
	for _, n := range ready {
		set[n] = struct{}{}
	}
	out := hits[:0]
	for _, hit := range hits {
		if _, ok := set[hit.Filename]; ok {
			out = append(out, hit)
		}
	}
	if dropped := len(hits) - len(out); dropped > 0 {
		e.logger.Debug(ctx, "hid chunks of uncommitted documents", zap.Int("hidden", dropped))
	}
	return out, nil
}

func dedupe(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, n := range b {
		set[n] = struct{}{}
	}
	var out []string
	for _, n := range a {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}
