package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

const instrumentationName = "github.com/fyrsmithlabs/tenantrag/internal/llm"

// GuardOptions configures Guarded.
type GuardOptions struct {
	// Name labels the breaker, spans and metrics.
	Name string
	// RPM caps requests per minute. Zero disables limiting.
	RPM int
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration

	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *zap.Logger
}

// Guarded rate-limits and circuit-breaks a Generator.
type Guarded struct {
	next    Generator
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer

	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewGuarded wraps g.
func NewGuarded(g Generator, opts GuardOptions) *Guarded {
	if opts.Name == "" {
		opts.Name = "llm"
	}
	if opts.BreakerTimeout == 0 {
		opts.BreakerTimeout = 60 * time.Second
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(instrumentationName)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gd := &Guarded{next: g, name: opts.Name, tracer: opts.Tracer}

	if opts.RPM > 0 {
		burst := opts.RPM / 10
		if burst < 1 {
			burst = 1
		}
		gd.limiter = rate.NewLimiter(rate.Limit(float64(opts.RPM)/60.0), burst)
	}

	gd.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	var err error
	gd.duration, err = opts.Meter.Float64Histogram(
		"ragd.llm.request_duration_seconds",
		metric.WithDescription("Duration of generative model calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn("failed to create llm duration histogram", zap.Error(err))
	}
	gd.errors, err = opts.Meter.Int64Counter(
		"ragd.llm.errors_total",
		metric.WithDescription("Generative model call failures, including rate limiter and breaker rejections"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		logger.Warn("failed to create llm errors counter", zap.Error(err))
	}

	return gd
}

// State reports the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}

// Generate waits for rate-limit capacity, then calls the wrapped generator
// through the breaker.
func (g *Guarded) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := g.tracer.Start(ctx, "llm.Generate", trace.WithAttributes(
		attribute.String("llm.name", g.name),
		attribute.Int("llm.prompt_chars", len(prompt)),
	))
	defer span.End()

	start := time.Now()
	out, err := g.generate(ctx, prompt)

	attrs := metric.WithAttributes(attribute.String("llm", g.name))
	if g.duration != nil {
		g.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err != nil {
		if g.errors != nil {
			g.errors.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.answer_chars", len(out)))
	return out, nil
}

func (g *Guarded) generate(ctx context.Context, prompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", errdefs.Upstream("llm rate limiter", err)
		}
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%s: %w: %w", g.name, errdefs.ErrUpstream, err)
		}
		return "", errdefs.Upstream(g.name, err)
	}
	return result.(string), nil
}
