// internal/logging/context.go
package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Context key types
type tenantCtxKey struct{}
type requestCtxKey struct{}

// idPattern bounds values copied from request headers into log fields.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	if tenant := TenantFromContext(ctx); tenant != "" {
		fields = append(fields, zap.String("tenant", tenant))
	}

	return fields
}

// WithTenant records the tenant token for log correlation. Tokens that are
// not plain identifiers come from untrusted headers and are not recorded.
func WithTenant(ctx context.Context, token string) context.Context {
	if !idPattern.MatchString(token) {
		return ctx
	}
	return context.WithValue(ctx, tenantCtxKey{}, token)
}

// TenantFromContext returns the tenant token recorded by WithTenant.
func TenantFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(tenantCtxKey{}).(string); ok {
		return t
	}
	return ""
}

// WithRequestID records the request ID for log correlation. Invalid IDs are
// dropped.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !idPattern.MatchString(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request ID recorded by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}
