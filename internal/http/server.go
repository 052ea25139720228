// Package http exposes tenant, document and query operations over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/answer"
	"github.com/fyrsmithlabs/tenantrag/internal/ingest"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

// Header names carrying request parameters.
const (
	HeaderTenant   = "tenant"
	HeaderFilename = "filename"
)

// Tenants manages tenant lifecycles.
type Tenants interface {
	Register(ctx context.Context) (string, error)
	Exists(ctx context.Context, token string) (bool, error)
	Drop(ctx context.Context, token string) error
}

// Documents ingests, lists and deletes a tenant's documents.
type Documents interface {
	IngestFile(ctx context.Context, token, filename string, r io.ReaderAt, size int64) (ingest.Result, error)
	DeleteDocument(ctx context.Context, token, filename string) (int, error)
	ListDocuments(ctx context.Context, token string) ([]string, error)
}

// Answerer answers questions over a tenant's documents.
type Answerer interface {
	Answer(ctx context.Context, token, query string, topK int, filenames []string) (*answer.Answer, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit uses echo's size syntax, e.g. "32M". Empty disables the limit.
	BodyLimit   string
	DefaultTopK int
}

// Deps are the server's collaborators. Health is optional.
type Deps struct {
	Tenants   Tenants
	Documents Documents
	Answerer  Answerer
	Health    vectorstore.HealthChecker
	Logger    *logging.Logger
	Meter     metric.Meter
}

// Server provides the tenantrag HTTP API.
type Server struct {
	echo      *echo.Echo
	tenants   Tenants
	documents Documents
	answerer  Answerer
	health    vectorstore.HealthChecker
	logger    *logging.Logger
	config    *Config
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg *Config) (*Server, error) {
	if deps.Tenants == nil || deps.Documents == nil || deps.Answerer == nil {
		return nil, fmt.Errorf("tenants, documents and answerer are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}

	logger := deps.Logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(NewHTTPMetrics(deps.Meter, logger.Underlying()).MetricsMiddleware())
	e.Use(requestContext(logger))

	s := &Server{
		echo:      e,
		tenants:   deps.Tenants,
		documents: deps.Documents,
		answerer:  deps.Answerer,
		health:    deps.Health,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// requestContext tags the request context with the request id and tenant
// so downstream logs carry them, then logs the completed request.
func requestContext(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			if token := req.Header.Get(HeaderTenant); token != "" {
				ctx = logging.WithTenant(ctx, token)
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is final.
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/tenants", s.handleCreateTenant)
	s.echo.GET("/tenants", s.handleCreateTenant)
	s.echo.HEAD("/tenants", s.handleTenantExists)
	s.echo.DELETE("/tenants", s.handleDropTenant)

	s.echo.POST("/documents", s.handleUpload)
	s.echo.GET("/documents", s.handleList)
	s.echo.DELETE("/documents", s.handleDelete)

	s.echo.POST("/query", s.handleQuery)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
