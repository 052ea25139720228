package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = fmt.Errorf("empty or nil input texts: %w", errdefs.ErrInvalidInput)

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = fmt.Errorf("invalid embeddings configuration: %w", errdefs.ErrInvalidInput)

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed: %w", errdefs.ErrUpstream)
)

// Embedder turns text into vectors.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery returns the vector for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is the interface for embedding providers.
type Provider interface {
	Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	// Provider is the provider type: "fastembed", "tei" or "openai".
	Provider string
	// Model is the embedding model name.
	Model string
	// BaseURL is the TEI or OpenAI-compatible endpoint.
	BaseURL string
	// APIKey authenticates against OpenAI.
	APIKey string
	// Dimension overrides model-based dimension detection.
	Dimension int
	// CacheDir is the model cache directory (only used for FastEmbed).
	CacheDir string
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "fastembed", "":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tei":
		svc, err := NewService(Config{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
		if err != nil {
			return nil, err
		}
		dim := cfg.Dimension
		if dim == 0 {
			dim = detectDimensionFromModel(cfg.Model)
		}
		return &teiProvider{Service: svc, dimension: dim}, nil
	case "openai":
		p, err := NewOpenAIProvider(OpenAIConfig{
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// detectDimensionFromModel returns the embedding dimension for a model name.
// Falls back to 384 if model is unknown.
func detectDimensionFromModel(model string) int {
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	if dim, ok := openAIModelDimensions[model]; ok {
		return dim
	}
	switch m := strings.ToLower(model); {
	case strings.Contains(m, "base"):
		return 768
	case strings.Contains(m, "large"):
		return 1024
	default:
		return 384
	}
}

// teiProvider wraps Service to implement Provider interface.
type teiProvider struct {
	*Service
	dimension int
}

// Dimension returns the embedding dimension based on the configured model.
func (t *teiProvider) Dimension() int {
	return t.dimension
}

// Close is a no-op for TEI since it uses HTTP.
func (t *teiProvider) Close() error {
	return nil
}
