// Package ingest turns uploaded documents into stored, searchable chunks.
//
// Ingest runs, in order: resolve tenant, chunk, claim the filename in the
// catalog, embed, verify the vector count, insert, commit the claim. The
// claim is the compare-and-insert step that makes concurrent uploads of the
// same filename well defined: the first claimant ingests, the others get
// StatusAlreadyExists. Every failure after the claim releases it, and the
// vector store removes a failed batch, so a failed ingest leaves nothing
// visible.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/chunker"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/extract"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/sanitize"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/tenantrag/internal/ingest"

// ErrCountMismatch is returned when the embedder returns a different number
// of vectors than chunks.
var ErrCountMismatch = fmt.Errorf("vectors do not match chunks: %w", errdefs.ErrCountMismatch)

// Status is the outcome of a successful Ingest call.
type Status string

const (
	// StatusIngested means the document's chunks were stored.
	StatusIngested Status = "ingested"
	// StatusAlreadyExists means the filename was already present and
	// nothing was written.
	StatusAlreadyExists Status = "already_exists"
)

// Result describes an Ingest outcome.
type Result struct {
	Status   Status
	Filename string
	Pages    int
	Chunks   int
}

// Resolver maps tenant tokens to collections.
type Resolver interface {
	Resolve(ctx context.Context, token string) (tenant.Handle, error)
}

// Catalog tracks document claims and listings.
type Catalog interface {
	Claim(ctx context.Context, tenant, filename string) error
	Commit(ctx context.Context, tenant, filename string, pages, chunks int) error
	Release(ctx context.Context, tenant, filename string) error
	Remove(ctx context.Context, tenant, filename string) (bool, error)
	List(ctx context.Context, tenant string, limit int) ([]string, error)
}

// Chunker splits pages into chunks.
type Chunker interface {
	Chunk(pages []chunker.Page, filename string) ([]chunker.Chunk, error)
}

// Config bounds calls to collaborators. Zero disables a timeout.
type Config struct {
	EmbedTimeout time.Duration
	StoreTimeout time.Duration
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Tenants   Resolver
	Chunker   Chunker
	Embedder  embeddings.Embedder
	Store     vectorstore.Store
	Catalog   Catalog
	Extractor extract.Extractor // optional, required by IngestFile
	Logger    *logging.Logger
	Tracer    trace.Tracer // optional, defaults to the global tracer
	Meter     metric.Meter // optional, defaults to the global meter
}

// Pipeline ingests, lists and deletes documents.
type Pipeline struct {
	tenants   Resolver
	chunker   Chunker
	embedder  embeddings.Embedder
	store     vectorstore.Store
	catalog   Catalog
	extractor extract.Extractor
	cfg       Config
	logger    *logging.Logger
	tracer    trace.Tracer

	documents metric.Int64Counter
	chunks    metric.Int64Histogram
}

// New creates a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Tenants == nil || deps.Chunker == nil || deps.Embedder == nil || deps.Store == nil || deps.Catalog == nil {
		return nil, errdefs.InvalidInput("ingest pipeline requires tenants, chunker, embedder, store and catalog")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	documents, err := meter.Int64Counter(
		"ragd.ingest.documents_total",
		metric.WithDescription("Ingest attempts by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating documents counter: %w", err)
	}
	chunks, err := meter.Int64Histogram(
		"ragd.ingest.chunks_per_document",
		metric.WithDescription("Number of chunks stored per ingested document"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating chunks histogram: %w", err)
	}

	return &Pipeline{
		tenants:   deps.Tenants,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		store:     deps.Store,
		catalog:   deps.Catalog,
		extractor: deps.Extractor,
		cfg:       cfg,
		logger:    deps.Logger.Named("ingest"),
		tracer:    tracer,
		documents: documents,
		chunks:    chunks,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// IngestFile extracts pages from a PDF and ingests them.
func (p *Pipeline) IngestFile(ctx context.Context, token, filename string, r io.ReaderAt, size int64) (Result, error) {
	if p.extractor == nil {
		return Result{}, fmt.Errorf("%w: no extractor configured", errdefs.ErrInternal)
	}
	pages, err := p.extractor.Extract(ctx, r, size)
	if err != nil {
		return Result{}, err
	}
	return p.Ingest(ctx, token, filename, pages)
}

// Ingest stores pages of filename in the tenant's collection. A filename
// that is already present (or being ingested) yields StatusAlreadyExists
// and a nil error.
func (p *Pipeline) Ingest(ctx context.Context, token, filename string, pages []chunker.Page) (res Result, err error) {
	ctx = logging.WithTenant(ctx, token)
	ctx, span := p.tracer.Start(ctx, "ingest.Ingest")
	defer span.End()

	span.SetAttributes(
		attribute.String("filename", filename),
		attribute.Int("pages", len(pages)),
	)

	defer func() {
		outcome := string(res.Status)
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		p.documents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	if err := sanitize.ValidateFilename(filename); err != nil {
		return Result{}, err
	}
	h, err := p.tenants.Resolve(ctx, token)
	if err != nil {
		return Result{}, err
	}

	chunks, err := p.chunker.Chunk(pages, filename)
	if err != nil {
		return Result{}, err
	}
	pageCount := len(chunker.MergePages(pages))
	res = Result{Filename: filename, Pages: pageCount, Chunks: len(chunks)}

	if err := p.catalog.Claim(ctx, token, filename); err != nil {
		if errors.Is(err, errdefs.ErrAlreadyExists) {
			p.logger.Info(ctx, "document already exists, upload skipped", zap.String("filename", filename))
			return Result{Status: StatusAlreadyExists, Filename: filename}, nil
		}
		return Result{}, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if relErr := p.catalog.Release(context.WithoutCancel(ctx), token, filename); relErr != nil {
			p.logger.Error(ctx, "releasing filename claim failed",
				zap.String("filename", filename),
				zap.Error(relErr),
			)
		}
	}()

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return Result{}, err
	}

	rows := make([]vectorstore.Row, len(chunks))
	for i, c := range chunks {
		rows[i] = vectorstore.Row{
			ID:       uuid.NewString(),
			Vector:   vectors[i],
			Filename: c.Filename,
			Page:     c.Page,
			Text:     c.Text,
		}
	}

	sctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	err = p.store.Insert(sctx, h.Collection, rows)
	cancel()
	if err != nil {
		return Result{}, errdefs.Upstream("inserting chunks", err)
	}

	if err := p.catalog.Commit(ctx, token, filename, pageCount, len(chunks)); err != nil {
		// The claim vanished underneath us (tenant dropped or document
		// deleted mid-ingest); the rows must not outlive it.
		if _, delErr := p.store.DeleteByFilename(context.WithoutCancel(ctx), h.Collection, filename); delErr != nil {
			p.logger.Error(ctx, "removing rows of uncommitted document failed",
				zap.String("filename", filename),
				zap.Error(delErr),
			)
		}
		return Result{}, fmt.Errorf("committing %s: %w: %w", filename, errdefs.ErrInternal, err)
	}
	committed = true

	res.Status = StatusIngested
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	span.SetStatus(codes.Ok, "success")
	p.chunks.Record(ctx, int64(len(chunks)))
	p.logger.Info(ctx, "document ingested",
		zap.String("filename", filename),
		zap.Int("pages", pageCount),
		zap.Int("chunks", len(chunks)),
	)
	return res, nil
}

func (p *Pipeline) embed(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	ectx, cancel := withTimeout(ctx, p.cfg.EmbedTimeout)
	defer cancel()

	vectors, err := p.embedder.EmbedDocuments(ectx, texts)
	if err != nil {
		return nil, errdefs.Upstream("embedding chunks", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", ErrCountMismatch, len(vectors), len(texts))
	}
	return vectors, nil
}

// DeleteDocument removes every chunk of filename and its catalog entry,
// returning the number of chunks removed. An unknown filename removes
// nothing and is not an error.
func (p *Pipeline) DeleteDocument(ctx context.Context, token, filename string) (int, error) {
	ctx = logging.WithTenant(ctx, token)
	ctx, span := p.tracer.Start(ctx, "ingest.DeleteDocument")
	defer span.End()

	if err := sanitize.ValidateFilename(filename); err != nil {
		return 0, err
	}
	h, err := p.tenants.Resolve(ctx, token)
	if err != nil {
		return 0, err
	}

	sctx, cancel := withTimeout(ctx, p.cfg.StoreTimeout)
	n, err := p.store.DeleteByFilename(sctx, h.Collection, filename)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, errdefs.Upstream("deleting chunks", err)
	}
	if _, err := p.catalog.Remove(ctx, token, filename); err != nil {
		return n, err
	}

	span.SetAttributes(attribute.Int("deleted", n))
	p.logger.Info(ctx, "document deleted",
		zap.String("filename", filename),
		zap.Int("chunks", n),
	)
	return n, nil
}

// ListDocuments returns the tenant's ingested filenames in ascending order.
func (p *Pipeline) ListDocuments(ctx context.Context, token string) ([]string, error) {
	if _, err := p.tenants.Resolve(ctx, token); err != nil {
		return nil, err
	}
	return p.catalog.List(ctx, token, 0)
}
