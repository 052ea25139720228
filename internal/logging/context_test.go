package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTenant(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"uuid", "6f1c2d3e-aaaa-4bbb-8ccc-000011112222", "6f1c2d3e-aaaa-4bbb-8ccc-000011112222"},
		{"empty", "", ""},
		{"header injection", "abc\nlevel=error", ""},
		{"too long", strings.Repeat("a", 129), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithTenant(context.Background(), tt.token)
			assert.Equal(t, tt.want, TenantFromContext(ctx))
		})
	}
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "Xk3lP0")
	assert.Equal(t, "Xk3lP0", RequestIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), "bad id")
	assert.Equal(t, "", RequestIDFromContext(ctx))
}
