package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("tenantrag.vectorstore.chromem")

// errNoEmbedder is returned if chromem ever tries to embed text itself.
var errNoEmbedder = errors.New("chromem: vectors must be precomputed")

// noEmbedding is registered on every collection. chromem substitutes an
// OpenAI embedder when nil is passed.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps everything
	// in memory.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database that searches by brute-force
// cosine similarity over normalized vectors, so no index step exists.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// mu serializes collection lifecycle and row writes so DeleteByFilename
	// can count what it removed. Searches hold it shared so the row count
	// they clamp k to cannot shrink before the query runs.
	mu sync.RWMutex

	// dims records each collection's vector size. Collections loaded from
	// disk learn theirs from the first insert.
	dimsMu sync.RWMutex
	dims   map[string]int
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandChromemPath(config.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: expanding path: %v", ErrInvalidConfig, err)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		config.Path = path

		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	store := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
		dims:   make(map[string]int),
	}

	logger.Info("ChromemStore initialized",
		zap.String("path", config.Path),
		zap.Bool("persistent", config.Path != ""),
		zap.Bool("compress", config.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c := s.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

func (s *ChromemStore) dim(name string) int {
	s.dimsMu.RLock()
	defer s.dimsMu.RUnlock()
	return s.dims[name]
}

func (s *ChromemStore) setDim(name string, dim int) {
	s.dimsMu.Lock()
	defer s.dimsMu.Unlock()
	if dim == 0 {
		delete(s.dims, name)
		return
	}
	s.dims[name] = dim
}

// CreateCollection creates a new collection with the specified configuration.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string, dim int) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", dim),
	)

	if err := validateName(name); err != nil {
		return err
	}
	if dim <= 0 {
		return errdefs.InvalidInput("vector size must be positive, got %d", dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// chromem's CreateCollection replaces an existing collection of the same name.
	if existing := s.db.GetCollection(name, noEmbedding); existing != nil {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	if _, err := s.db.CreateCollection(name, map[string]string{"dimension": strconv.Itoa(dim)}, noEmbedding); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errdefs.Upstream("chromem create collection", err)
	}
	s.setDim(name, dim)

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("created chromem collection",
		zap.String("collection", name),
		zap.Int("vector_size", dim),
	)
	return nil
}

// DeleteCollection deletes a collection and all its documents.
func (s *ChromemStore) DeleteCollection(ctx context.Context, name string) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collection(name); err != nil {
		return err
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errdefs.Upstream("chromem delete collection", err)
	}
	s.setDim(name, 0)

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted chromem collection", zap.String("collection", name))
	return nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionExists")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := validateName(name); err != nil {
		return false, err
	}
	return s.db.GetCollection(name, noEmbedding) != nil, nil
}

// Insert adds rows to the collection. On failure every row of the batch is
// removed again.
func (s *ChromemStore) Insert(ctx context.Context, name string, rows []Row) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("row_count", len(rows)),
	)

	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(name)
	if err != nil {
		return err
	}
	dim := s.dim(name)
	if err := validateRows(rows, dim); err != nil {
		return err
	}

	docs := make([]chromem.Document, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		docs[i] = chromem.Document{
			ID:      r.ID,
			Content: r.Text,
			Metadata: map[string]string{
				fieldFilename: r.Filename,
				fieldPage:     strconv.Itoa(r.Page),
			},
			// chromem normalizes in place; keep the caller's slice intact.
			Embedding: append([]float32(nil), r.Vector...),
		}
	}

	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		// ctx may be the reason AddDocuments failed.
		if delErr := c.Delete(context.WithoutCancel(ctx), nil, nil, ids...); delErr != nil {
			s.logger.Error("compensating delete failed",
				zap.String("collection", name),
				zap.Int("rows", len(ids)),
				zap.Error(delErr),
			)
		}
		return errdefs.Upstream("chromem insert", err)
	}
	if dim == 0 {
		s.setDim(name, len(rows[0].Vector))
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("inserted rows into chromem",
		zap.String("collection", name),
		zap.Int("count", len(rows)),
	)
	return nil
}

// Search performs similarity search. chromem reports cosine similarity s
// between unit vectors; the squared L2 distance between them is 2 - 2s.
func (s *ChromemStore) Search(ctx context.Context, name string, vec []float32, k int, filenames []string) ([]Hit, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("k", k),
		attribute.Int("filename_filters", len(filenames)),
	)

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(vec, s.dim(name), k); err != nil {
		return nil, err
	}

	// chromem requires nResults <= doc count
	count := c.Count()
	if count == 0 {
		return []Hit{}, nil
	}
	if k > count {
		k = count
	}

	// chromem's where clause matches one value per key, so a filename set
	// becomes one query per filename merged by distance.
	wheres := []map[string]string{nil}
	if len(filenames) > 0 {
		wheres = wheres[:0]
		seen := make(map[string]struct{}, len(filenames))
		for _, f := range filenames {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			wheres = append(wheres, map[string]string{fieldFilename: f})
		}
	}

	query := append([]float32(nil), vec...)
	var hits []Hit
	for _, where := range wheres {
		results, err := c.QueryEmbedding(ctx, query, k, where, nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, errdefs.Upstream("chromem query", err)
		}
		for _, r := range results {
			hits = append(hits, chromemHit(r))
		}
	}

	SortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

func chromemHit(r chromem.Result) Hit {
	page, _ := strconv.Atoi(r.Metadata[fieldPage])
	distance := 2 - 2*r.Similarity
	if distance < 0 {
		distance = 0
	}
	return Hit{
		ID:       r.ID,
		Distance: distance,
		Filename: r.Metadata[fieldFilename],
		Page:     page,
		Text:     r.Content,
	}
}

// DeleteByFilename removes every row of a document.
func (s *ChromemStore) DeleteByFilename(ctx context.Context, name, filename string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByFilename")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if filename == "" {
		return 0, errdefs.InvalidInput("filename is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}

	before := c.Count()
	if err := c.Delete(ctx, map[string]string{fieldFilename: filename}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, errdefs.Upstream("chromem delete", err)
	}
	deleted := before - c.Count()

	span.SetAttributes(attribute.Int("deleted", deleted))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("deleted rows from chromem",
		zap.String("collection", name),
		zap.Int("count", deleted),
	)
	return deleted, nil
}

// Count returns the number of rows in a collection.
func (s *ChromemStore) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(name)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Health reports whether the store is usable. For a persistent store the
// data directory must still exist.
func (s *ChromemStore) Health(_ context.Context) error {
	if s.config.Path == "" {
		return nil
	}
	if _, err := os.Stat(s.config.Path); err != nil {
		return errdefs.Upstream("chromem data directory", err)
	}
	return nil
}

// Close closes the ChromemStore.
// chromem-go persists on every write, no explicit flush needed.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// SortHits orders hits ascending by distance, breaking ties by ID.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
