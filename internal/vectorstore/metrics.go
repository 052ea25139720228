package vectorstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks how long store operations take.
	// Labels: backend (chromem, qdrant), operation
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// OperationErrors counts failed store operations.
	// Labels: backend, operation
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operation_errors_total",
			Help:      "Total number of failed vector store operations",
		},
		[]string{"backend", "operation"},
	)

	// RowsWritten counts rows inserted and deleted.
	// Labels: backend, direction (inserted, deleted)
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "rows_total",
			Help:      "Total number of rows inserted into or deleted from the vector store",
		},
		[]string{"backend", "direction"},
	)

	// HealthCheckTotal counts health check operations.
	// Labels: result (success, error)
	HealthCheckTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "health_checks_total",
			Help:      "Total number of health check operations",
		},
		[]string{"result"},
	)

	// HealthStatus indicates current health status (1=healthy, 0=degraded).
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "health_status",
			Help:      "Current health status (1=healthy, 0=degraded)",
		},
	)
)

// RecordHealthCheckResult records the outcome of a health check.
func RecordHealthCheckResult(success bool) {
	if success {
		HealthCheckTotal.WithLabelValues("success").Inc()
		HealthStatus.Set(1)
	} else {
		HealthCheckTotal.WithLabelValues("error").Inc()
		HealthStatus.Set(0)
	}
}

// Instrumented wraps a Store and records Prometheus metrics for every call.
type Instrumented struct {
	next    Store
	backend string
}

// NewInstrumented wraps next. backend labels the metrics.
func NewInstrumented(next Store, backend string) *Instrumented {
	return &Instrumented{next: next, backend: backend}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	OperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(s.backend, op).Inc()
	}
}

func (s *Instrumented) CreateCollection(ctx context.Context, name string, dim int) (err error) {
	defer func(start time.Time) { s.observe("create_collection", start, err) }(time.Now())
	return s.next.CreateCollection(ctx, name, dim)
}

func (s *Instrumented) DeleteCollection(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe("delete_collection", start, err) }(time.Now())
	return s.next.DeleteCollection(ctx, name)
}

func (s *Instrumented) CollectionExists(ctx context.Context, name string) (ok bool, err error) {
	defer func(start time.Time) { s.observe("collection_exists", start, err) }(time.Now())
	return s.next.CollectionExists(ctx, name)
}

func (s *Instrumented) Insert(ctx context.Context, name string, rows []Row) (err error) {
	defer func(start time.Time) { s.observe("insert", start, err) }(time.Now())
	if err = s.next.Insert(ctx, name, rows); err == nil {
		RowsWritten.WithLabelValues(s.backend, "inserted").Add(float64(len(rows)))
	}
	return err
}

func (s *Instrumented) Search(ctx context.Context, name string, vec []float32, k int, filenames []string) (hits []Hit, err error) {
	defer func(start time.Time) { s.observe("search", start, err) }(time.Now())
	return s.next.Search(ctx, name, vec, k, filenames)
}

func (s *Instrumented) DeleteByFilename(ctx context.Context, name, filename string) (n int, err error) {
	defer func(start time.Time) { s.observe("delete_by_filename", start, err) }(time.Now())
	n, err = s.next.DeleteByFilename(ctx, name, filename)
	if err == nil {
		RowsWritten.WithLabelValues(s.backend, "deleted").Add(float64(n))
	}
	return n, err
}

func (s *Instrumented) Count(ctx context.Context, name string) (n int, err error) {
	defer func(start time.Time) { s.observe("count", start, err) }(time.Now())
	return s.next.Count(ctx, name)
}

// Health checks the wrapped store if it supports health checks and updates
// the health gauges.
func (s *Instrumented) Health(ctx context.Context) error {
	hc, ok := s.next.(HealthChecker)
	if !ok {
		RecordHealthCheckResult(true)
		return nil
	}
	err := hc.Health(ctx)
	RecordHealthCheckResult(err == nil)
	return err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}

var (
	_ Store         = (*Instrumented)(nil)
	_ HealthChecker = (*Instrumented)(nil)
)
