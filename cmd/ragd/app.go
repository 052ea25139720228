package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/answer"
	"github.com/fyrsmithlabs/tenantrag/internal/catalog"
	"github.com/fyrsmithlabs/tenantrag/internal/chunker"
	"github.com/fyrsmithlabs/tenantrag/internal/config"
	"github.com/fyrsmithlabs/tenantrag/internal/embeddings"
	"github.com/fyrsmithlabs/tenantrag/internal/extract"
	rhttp "github.com/fyrsmithlabs/tenantrag/internal/http"
	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/llm"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/retrieval"
	"github.com/fyrsmithlabs/tenantrag/internal/telemetry"
	"github.com/fyrsmithlabs/tenantrag/internal/tenant"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

// app holds the wired server and everything it must release on exit.
type app struct {
	logger *logging.Logger
	server *rhttp.Server

	// closers run in reverse order of registration.
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

func (a *app) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// close releases dependencies in reverse order of construction.
func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn(ctx, "failed to close dependency", zap.String("dependency", c.name), zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// newApp builds the dependency graph:
//
//	config -> logger -> telemetry -> vector store -> catalog ->
//	embeddings -> generator -> registry -> pipeline -> engine ->
//	orchestrator -> http server
//
// On error everything constructed so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("llm", cfg.LLM.Provider),
		logging.Secret("llm_api_key", cfg.LLM.APIKey),
	)

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, err
	}
	a.onClose("telemetry", func() error { return tel.Shutdown(context.Background()) })
	for _, p := range tel.Problems() {
		logger.Warn(ctx, "telemetry degraded", zap.Error(p))
	}

	zl := logger.Underlying()

	store, err := vectorstore.NewStore(cfg.VectorStore, zl.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	a.onClose("vectorstore", store.Close)

	hctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Store.Duration())
	err = store.Health(hctx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("vector store health check: %w", err)
	}

	cat, err := catalog.Open(catalog.Config{
		Path:      cfg.Catalog.Path,
		ListLimit: cfg.Catalog.ListLimit,
	}, zl.Named("catalog"))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.onClose("catalog", cat.Close)

	embedder, err := newEmbedder(ctx, cfg, tel, zl)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.onClose("embeddings", embedder.Close)

	gen, closeGen, err := llm.New(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey.Value(),
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	a.onClose("llm", closeGen)
	guarded := llm.NewGuarded(gen, llm.GuardOptions{
		Name:   cfg.LLM.Provider,
		RPM:    cfg.LLM.RPM,
		Tracer: tel.Tracer("ragd/llm"),
		Meter:  tel.Meter("ragd/llm"),
		Logger: zl.Named("llm"),
	})

	registry, err := tenant.NewRegistry(store, cat, embedder.Dimension(), logger)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(chunker.Config{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	pipeline, err := ingest.New(ingest.Deps{
		Tenants:   registry,
		Chunker:   ch,
		Embedder:  embedder,
		Store:     store,
		Catalog:   cat,
		Extractor: extract.NewPDFExtractor(extract.Options{Logger: logger}),
		Logger:    logger,
		Tracer:    tel.Tracer("ragd/ingest"),
		Meter:     tel.Meter("ragd/ingest"),
	}, ingest.Config{
		EmbedTimeout: cfg.Timeouts.Embedding.Duration(),
		StoreTimeout: cfg.Timeouts.Store.Duration(),
	})
	if err != nil {
		return nil, err
	}

	engine, err := retrieval.New(retrieval.Deps{
		Tenants:   registry,
		Embedder:  embedder,
		Store:     store,
		Documents: cat,
		Logger:    logger,
		Tracer:    tel.Tracer("ragd/retrieval"),
		Meter:     tel.Meter("ragd/retrieval"),
	}, retrieval.Config{
		MaxTopK:      cfg.Retrieval.MaxTopK,
		EmbedTimeout: cfg.Timeouts.Embedding.Duration(),
		StoreTimeout: cfg.Timeouts.Store.Duration(),
	})
	if err != nil {
		return nil, err
	}

	orchestrator, err := answer.New(engine, guarded,
		answer.WithTimeout(cfg.Timeouts.LLM.Duration()),
		answer.WithLogger(logger),
		answer.WithTracer(tel.Tracer("ragd/answer")),
	)
	if err != nil {
		return nil, err
	}

	a.server, err = rhttp.NewServer(rhttp.Deps{
		Tenants:   registry,
		Documents: pipeline,
		Answerer:  orchestrator,
		Health: healthFunc(func(ctx context.Context) error {
			if err := store.Health(ctx); err != nil {
				return err
			}
			return cat.Ping(ctx)
		}),
		Logger: logger,
		Meter:  tel.Meter("ragd/http"),
	}, &rhttp.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		BodyLimit:   cfg.Server.BodyLimit,
		DefaultTopK: cfg.Retrieval.DefaultTopK,
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "ragd initialized",
		zap.Int("embedding_dimension", embedder.Dimension()),
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("metrics_endpoint", "/metrics"),
	)
	return a, nil
}

// healthFunc adapts a check function to vectorstore.HealthChecker.
type healthFunc func(ctx context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	return logging.NewLogger(lc, nil)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.SamplingRate = cfg.Telemetry.SamplingRate
	return tc
}

// newEmbedder stacks the configured provider as
// breaker -> instrumentation -> normalization -> batching -> query cache.
func newEmbedder(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry, zl *zap.Logger) (embeddings.Provider, error) {
	ec := cfg.Embeddings
	base, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  ec.Provider,
		Model:     ec.Model,
		BaseURL:   ec.BaseURL,
		APIKey:    ec.APIKey.Value(),
		Dimension: ec.Dimension,
		CacheDir:  ec.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	metrics := embeddings.NewMetrics(tel.Meter("ragd/embeddings"), zl.Named("embeddings"))

	var p embeddings.Provider = embeddings.NewResilient(base, embeddings.BreakerConfig{
		Name: "embeddings-" + ec.Provider,
	})
	p = embeddings.NewInstrumented(p, ec.Model, metrics, tel.Tracer("ragd/embeddings"))
	p = embeddings.NewNormalized(p)
	p = embeddings.NewBatcher(p, ec.BatchSize, ec.Concurrency)

	if !ec.Cache.Enabled {
		return p, nil
	}

	var cache embeddings.Cache
	if url := ec.Cache.RedisURL.Value(); url != "" {
		rc, err := embeddings.NewRedisCache(ctx, url, ec.Cache.TTL.Duration())
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		cache = rc
	} else {
		lru, err := embeddings.NewLRUCache(ec.Cache.Size)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		cache = lru
	}
	return embeddings.NewCachedQuery(p, cache, ec.Model, zl.Named("embeddings"), metrics), nil
}
