package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("tenantrag.vectorstore.qdrant")

// fieldRowID keeps the caller's row ID when it is not a UUID.
const fieldRowID = "id"

// QdrantConfig holds configuration for Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries.
	// Doubles on each retry (exponential backoff).
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts, temporary unavailability.
// Returns false for invalid config, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Store implementation using Qdrant's native gRPC client.
//
// Collections use Euclid distance with a keyword payload index on the
// filename so per-document filters and deletes stay cheap. Qdrant reports
// the plain Euclidean distance; Search squares it.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	// dims caches each collection's vector size.
	// Key: collection name, Value: int
	dims sync.Map
}

// NewQdrantStore creates a new QdrantStore and verifies the connection.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("Qdrant gRPC using plaintext (TLS disabled)", zap.String("host", config.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Health(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("tls", config.UseTLS),
	)
	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Health performs a health check on the Qdrant connection.
func (s *QdrantStore) Health(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errdefs.Upstream("qdrant health check", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if !IsTransientError(err) || attempt == s.config.MaxRetries {
			return qdrantError(operationName, err)
		}

		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return errdefs.Upstream(operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// qdrantError maps gRPC status codes onto the error kinds callers handle.
func qdrantError(op string, err error) error {
	if errors.Is(err, errdefs.ErrNotFound) || errors.Is(err, errdefs.ErrAlreadyExists) {
		return err
	}
	st, ok := status.FromError(err)
	if ok {
		switch st.Code() {
		case grpccodes.NotFound:
			return fmt.Errorf("%s: %w", op, ErrCollectionNotFound)
		case grpccodes.AlreadyExists:
			return fmt.Errorf("%s: %w", op, ErrCollectionExists)
		case grpccodes.InvalidArgument:
			return errdefs.InvalidInput("%s: %s", op, st.Message())
		}
	}
	return errdefs.Upstream(op, err)
}

// CreateCollection creates a collection and its filename index.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dim int) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.CreateCollection")
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

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrCollectionExists, name)
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Euclid,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.retryOperation(ctx, "create_field_index", func() error {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      fieldFilename,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// An index-less collection would still work but slowly; roll back.
		_ = s.client.DeleteCollection(context.WithoutCancel(ctx), name)
		return err
	}

	s.dims.Store(name, dim)

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("created qdrant collection",
		zap.String("collection", name),
		zap.Int("vector_size", dim),
	)
	return nil
}

// DeleteCollection deletes a collection and all its points.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}

	err = s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.dims.Delete(name)

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted qdrant collection", zap.String("collection", name))
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.CollectionExists")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := validateName(name); err != nil {
		return false, err
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		ok, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetStatus(codes.Ok, "success")
	return exists, nil
}

// dimension returns the collection's vector size, reading collection info
// on first use.
func (s *QdrantStore) dimension(ctx context.Context, name string) (int, error) {
	if v, ok := s.dims.Load(name); ok {
		return v.(int), nil
	}

	var dim int
	err := s.retryOperation(ctx, "get_collection_info", func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		dim = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		return nil
	})
	if err != nil {
		return 0, err
	}
	if dim > 0 {
		s.dims.Store(name, dim)
	}
	return dim, nil
}

// pointID converts a row ID into a Qdrant point ID. Non-UUID IDs map to a
// stable name-based UUID.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func rowPayload(r Row) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		fieldRowID:    {Kind: &qdrant.Value_StringValue{StringValue: r.ID}},
		fieldFilename: {Kind: &qdrant.Value_StringValue{StringValue: r.Filename}},
		fieldPage:     {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(r.Page)}},
		fieldText:     {Kind: &qdrant.Value_StringValue{StringValue: r.Text}},
	}
}

// qdrantHit converts a scored point. Euclid scores are plain distances.
func qdrantHit(p *qdrant.ScoredPoint) Hit {
	payload := p.GetPayload()
	h := Hit{
		ID:       payload[fieldRowID].GetStringValue(),
		Distance: p.GetScore() * p.GetScore(),
		Filename: payload[fieldFilename].GetStringValue(),
		Page:     int(payload[fieldPage].GetIntegerValue()),
		Text:     payload[fieldText].GetStringValue(),
	}
	if h.ID == "" {
		h.ID = p.GetId().GetUuid()
	}
	return h
}

func filenameFilter(filenames ...string) *qdrant.Filter {
	if len(filenames) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords(fieldFilename, filenames...)},
	}
}

// Insert upserts rows and waits until they are searchable. If the upsert
// fails, the batch's points are deleted again.
func (s *QdrantStore) Insert(ctx context.Context, name string, rows []Row) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("row_count", len(rows)),
	)

	if len(rows) == 0 {
		return nil
	}
	if err := validateName(name); err != nil {
		return err
	}
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	if err := validateRows(rows, dim); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(rows))
	ids := make([]*qdrant.PointId, len(rows))
	for i, r := range rows {
		ids[i] = pointID(r.ID)
		points[i] = &qdrant.PointStruct{
			Id:      ids[i],
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: rowPayload(r),
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		_, delErr := s.client.Delete(context.WithoutCancel(ctx), &qdrant.DeletePoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelector(ids...),
		})
		if delErr != nil {
			s.logger.Error("compensating delete failed",
				zap.String("collection", name),
				zap.Int("rows", len(ids)),
				zap.Error(delErr),
			)
		}
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("inserted rows into qdrant",
		zap.String("collection", name),
		zap.Int("count", len(rows)),
	)
	return nil
}

// Search performs similarity search, optionally restricted to filenames.
func (s *QdrantStore) Search(ctx context.Context, name string, vec []float32, k int, filenames []string) ([]Hit, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("k", k),
		attribute.Int("filename_filters", len(filenames)),
	)

	if err := validateName(name); err != nil {
		return nil, err
	}
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(vec, dim, k); err != nil {
		return nil, err
	}

	var results []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQuery(vec...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filenameFilter(filenames...),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, p := range results {
		hits[i] = qdrantHit(p)
	}
	SortHits(hits)

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// DeleteByFilename removes every point of a document.
func (s *QdrantStore) DeleteByFilename(ctx context.Context, name, filename string) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByFilename")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if filename == "" {
		return 0, errdefs.InvalidInput("filename is required")
	}
	if err := validateName(name); err != nil {
		return 0, err
	}

	filter := filenameFilter(filename)
	n, err := s.count(ctx, name, filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	err = s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(filter),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int("deleted", n))
	span.SetStatus(codes.Ok, "success")
	return n, nil
}

// Count returns the exact number of points in a collection.
func (s *QdrantStore) Count(ctx context.Context, name string) (int, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	return s.count(ctx, name, nil)
}

func (s *QdrantStore) count(ctx context.Context, name string, filter *qdrant.Filter) (int, error) {
	var n uint64
	err := s.retryOperation(ctx, "count", func() error {
		res, err := s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: name,
			Filter:         filter,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		n = res
		return nil
	})
	return int(n), err
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
