package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Instrumented records a span and generation metrics around every call.
type Instrumented struct {
	Provider
	model   string
	metrics *Metrics
	tracer  trace.Tracer
}

// NewInstrumented wraps p. A nil tracer uses the global tracer provider.
func NewInstrumented(p Provider, model string, metrics *Metrics, tracer trace.Tracer) *Instrumented {
	if tracer == nil {
		tracer = otel.Tracer(embeddingsInstrumentationName)
	}
	return &Instrumented{Provider: p, model: model, metrics: metrics, tracer: tracer}
}

// EmbedDocuments generates embeddings for multiple texts.
func (i *Instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := i.tracer.Start(ctx, "embeddings.EmbedDocuments", trace.WithAttributes(
		attribute.String("embedding.model", i.model),
		attribute.Int("embedding.texts", len(texts)),
	))
	defer span.End()

	start := time.Now()
	vectors, err := i.Provider.EmbedDocuments(ctx, texts)
	i.metrics.RecordGeneration(ctx, i.model, "embed_documents", time.Since(start), len(texts), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed documents failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("embedding.vectors", len(vectors)))
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (i *Instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := i.tracer.Start(ctx, "embeddings.EmbedQuery", trace.WithAttributes(
		attribute.String("embedding.model", i.model),
	))
	defer span.End()

	start := time.Now()
	vector, err := i.Provider.EmbedQuery(ctx, text)
	i.metrics.RecordGeneration(ctx, i.model, "embed_query", time.Since(start), 1, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query failed")
		return nil, err
	}
	return vector, nil
}
