// Package llm provides the generative model used to answer questions.
//
// Two providers are supported: OpenAI chat models through langchaingo and
// Google Gemini through generative-ai-go. Guarded adds request-rate
// limiting, a circuit breaker and instrumentation around either.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

var (
	// ErrInvalidConfig indicates invalid generator configuration.
	ErrInvalidConfig = fmt.Errorf("invalid llm configuration: %w", errdefs.ErrInvalidInput)

	// ErrGenerationFailed indicates the model call failed.
	ErrGenerationFailed = fmt.Errorf("generation failed: %w", errdefs.ErrUpstream)

	// ErrEmptyResponse indicates the model returned no text.
	ErrEmptyResponse = fmt.Errorf("empty model response: %w", errdefs.ErrUpstream)
)

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a generator.
type Config struct {
	// Provider is "openai" or "gemini".
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
}

// New creates the configured generator. The returned close function
// releases provider resources.
func New(ctx context.Context, cfg Config) (Generator, func() error, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		g, err := NewOpenAI(cfg)
		if err != nil {
			return nil, nil, err
		}
		return g, func() error { return nil }, nil
	case "gemini":
		g, err := NewGemini(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
