package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

// BreakerConfig configures the circuit breaker around a provider.
type BreakerConfig struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears failure counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32
	FailureRatio float64

	OnStateChange func(name string, from, to gobreaker.State)
}

func (c *BreakerConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "embeddings"
	}
	if c.MaxRequests == 0 {
		c.MaxRequests = 3
	}
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
}

// NewBreaker builds a gobreaker circuit breaker from cfg. Caller
// cancellation and invalid input never count as failures.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	cfg.applyDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errdefs.ErrInvalidInput)
		},
	})
}

// BreakerError maps gobreaker rejections to ErrUpstream and passes other
// errors through.
func BreakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", name, errdefs.ErrUpstream, err)
	}
	return err
}

// Resilient wraps a provider in a circuit breaker so a failing backend is
// not hammered by every ingest and query.
type Resilient struct {
	Provider
	name    string
	breaker *gobreaker.CircuitBreaker
}

// NewResilient wraps p.
func NewResilient(p Provider, cfg BreakerConfig) *Resilient {
	cfg.applyDefaults()
	return &Resilient{Provider: p, name: cfg.Name, breaker: NewBreaker(cfg)}
}

// State reports the breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}

// EmbedDocuments generates embeddings for multiple texts.
func (r *Resilient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.Provider.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return nil, BreakerError(r.name, err)
	}
	return result.([][]float32), nil
}

// EmbedQuery generates an embedding for a single query.
func (r *Resilient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.Provider.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, BreakerError(r.name, err)
	}
	return result.([]float32), nil
}
