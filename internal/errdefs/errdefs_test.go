package errdefs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	errCollectionMissing := fmt.Errorf("collection %w", ErrNotFound)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"nil", nil, nil},
		{"plain", errors.New("boom"), ErrInternal},
		{"direct", ErrAlreadyExists, ErrAlreadyExists},
		{"wrapped sentinel", fmt.Errorf("drop tenant: %w", errCollectionMissing), ErrNotFound},
		{"deadline", fmt.Errorf("embed: %w", context.DeadlineExceeded), ErrUpstream},
		{"invalid wins over not found", fmt.Errorf("%w: %w", ErrNotFound, ErrInvalidInput), ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestUpstream(t *testing.T) {
	cause := errors.New("connection refused")

	err := Upstream("embed documents", cause)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "embed documents")
	assert.True(t, IsRetryable(err))

	// Classified errors pass through untouched.
	notFound := fmt.Errorf("tenant %w", ErrNotFound)
	assert.Same(t, notFound, Upstream("search", notFound))

	assert.NoError(t, Upstream("noop", nil))
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("top_k must be positive, got %d", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: top_k must be positive, got 0", err.Error())
	assert.False(t, IsRetryable(err))
}
