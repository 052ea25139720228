package llm

import (
	"context"
	"sync"
)

// RecordingGenerator is a Generator for tests. It records every prompt and
// returns Answer, or Err when set.
type RecordingGenerator struct {
	Answer string
	Err    error

	mu      sync.Mutex
	prompts []string
}

// Generate records prompt and returns the scripted result.
func (r *RecordingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Answer, nil
}

// Prompts returns the prompts received so far.
func (r *RecordingGenerator) Prompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}
