// Package answer builds retrieval-augmented answers: it retrieves the
// passages nearest to a question, places them in a prompt and asks the
// generative model once.
package answer

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/llm"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/tenantrag/internal/answer"

// contextSeparator joins passages in the prompt's context block.
const contextSeparator = "\n"

// Searcher finds passages relevant to a query.
type Searcher interface {
	Search(ctx context.Context, token, query string, topK int, filenames []string) ([]vectorstore.Hit, error)
}

// Answer is a generated answer with the passages it was conditioned on.
type Answer struct {
	Text string
	Hits []vectorstore.Hit
}

// Orchestrator answers questions for a tenant.
type Orchestrator struct {
	searcher  Searcher
	generator llm.Generator
	timeout   time.Duration
	logger    *logging.Logger
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds the generator call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// New creates an Orchestrator.
func New(searcher Searcher, generator llm.Generator, opts ...Option) (*Orchestrator, error) {
	if searcher == nil || generator == nil {
		return nil, errdefs.InvalidInput("answer orchestrator requires a searcher and a generator")
	}
	o := &Orchestrator{
		searcher:  searcher,
		generator: generator,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.Named("answer")
	return o, nil
}

// BuildContext joins hit texts in ranked order.
func BuildContext(hits []vectorstore.Hit) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, contextSeparator)
}

// BuildPrompt places the context block before the question.
func BuildPrompt(passages, query string) string {
	return "Context:\n" + passages + "\n\nQuestion:\n" + query
}

// Answer retrieves passages for query and generates an answer from them.
// The model is called exactly once, with an empty context when nothing
// matched, so it can say it lacks the information.
func (o *Orchestrator) Answer(ctx context.Context, token, query string, topK int, filenames []string) (*Answer, error) {
	ctx = logging.WithTenant(ctx, token)
	ctx, span := o.tracer.Start(ctx, "answer.Answer")
	defer span.End()

	hits, err := o.searcher.Search(ctx, token, query, topK, filenames)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	if len(hits) == 0 {
		o.logger.Debug(ctx, "no passages matched, generating without context")
	}

	prompt := BuildPrompt(BuildContext(hits), query)

	var (
		gctx   context.Context
		cancel context.CancelFunc
	)
	if o.timeout > 0 {
		gctx, cancel = context.WithTimeout(ctx, o.timeout)
	} else {
		gctx, cancel = context.WithCancel(ctx)
	}
	text, err := o.generator.Generate(gctx, prompt)
	cancel()
	if err != nil {
		err = errdefs.Upstream("generating answer", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error(ctx, "answer generation failed", zap.Error(err))
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return &Answer{Text: text, Hits: hits}, nil
}
