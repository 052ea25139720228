package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI generates completions with an OpenAI chat model.
type OpenAI struct {
	model       llms.Model
	name        string
	temperature float64
}

// NewOpenAI creates an OpenAI generator. An API key is required unless
// BaseURL points at a compatible server.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: openai api key required", ErrInvalidConfig)
		}
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating OpenAI client: %v", ErrInvalidConfig, err)
	}

	return &OpenAI{model: client, name: cfg.Model, temperature: cfg.Temperature}, nil
}

// Generate returns the model's answer to prompt.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, o.model, prompt, llms.WithTemperature(o.temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGenerationFailed, o.name, err)
	}

	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyResponse, o.name)
	}
	return out, nil
}
