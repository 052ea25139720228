package answer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/answer"
	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/llm"
	"github.com/fyrsmithlabs/tenantrag/internal/telemetry"
	"github.com/fyrsmithlabs/tenantrag/internal/vectorstore"
)

type stubSearcher struct {
	hits []vectorstore.Hit
	err  error

	calls     int
	gotTopK   int
	gotFilter []string
}

func (s *stubSearcher) Search(_ context.Context, _, _ string, topK int, filenames []string) ([]vectorstore.Hit, error) {
	s.calls++
	s.gotTopK = topK
	s.gotFilter = filenames
	return s.hits, s.err
}

func TestBuildPrompt(t *testing.T) {
	hits := []vectorstore.Hit{{Text: "first passage"}, {Text: "second passage"}}

	got := answer.BuildPrompt(answer.BuildContext(hits), "what is covered?")
	assert.Equal(t, "Context:\nfirst passage\nsecond passage\n\nQuestion:\nwhat is covered?", got)
	assert.Equal(t, "Context:\n\n\nQuestion:\nq", answer.BuildPrompt(answer.BuildContext(nil), "q"))
}

func TestAnswer(t *testing.T) {
	hits := []vectorstore.Hit{
		{ID: "1", Distance: 0.1, Text: "fire is covered", Filename: "policy"},
		{ID: "2", Distance: 0.4, Text: "flood is covered", Filename: "policy"},
	}
	searcher := &stubSearcher{hits: hits}
	gen := &llm.RecordingGenerator{Answer: "Fire and flood."}
	tel := telemetry.NewTestTelemetry()

	o, err := answer.New(searcher, gen, answer.WithTracer(tel.Tracer("answer_test")))
	require.NoError(t, err)

	got, err := o.Answer(context.Background(), "tok", "what is covered?", 3, []string{"policy"})
	require.NoError(t, err)

	assert.Equal(t, "Fire and flood.", got.Text)
	assert.Equal(t, hits, got.Hits)
	assert.Equal(t, 3, searcher.gotTopK)
	assert.Equal(t, []string{"policy"}, searcher.gotFilter)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1, "the model is called exactly once")
	assert.Equal(t, "Context:\nfire is covered\nflood is covered\n\nQuestion:\nwhat is covered?", prompts[0])

	tel.AssertSpanExists(t, "answer.Answer")
	tel.AssertSpanAttribute(t, "answer.Answer", "hits", int64(2))
}

func TestAnswer_ZeroHitsStillGenerates(t *testing.T) {
	gen := &llm.RecordingGenerator{Answer: "I don't know."}
	o, err := answer.New(&stubSearcher{}, gen)
	require.NoError(t, err)

	got, err := o.Answer(context.Background(), "tok", "anything?", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", got.Text)
	assert.Empty(t, got.Hits)

	prompts := gen.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, "Context:\n\n\nQuestion:\nanything?", prompts[0])
}

func TestAnswer_SearchErrorSkipsGeneration(t *testing.T) {
	gen := &llm.RecordingGenerator{}
	o, err := answer.New(&stubSearcher{err: errdefs.ErrNotFound}, gen)
	require.NoError(t, err)

	_, err = o.Answer(context.Background(), "tok", "q", 5, nil)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
	assert.Empty(t, gen.Prompts())
}

func TestAnswer_GeneratorError(t *testing.T) {
	gen := &llm.RecordingGenerator{Err: errors.New("model overloaded")}
	o, err := answer.New(&stubSearcher{}, gen)
	require.NoError(t, err)

	_, err = o.Answer(context.Background(), "tok", "q", 5, nil)
	assert.ErrorIs(t, err, errdefs.ErrUpstream)
	assert.Len(t, gen.Prompts(), 1, "no retries inside the orchestrator")
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(time.Second):
		return "late", nil
	}
}

func TestAnswer_Timeout(t *testing.T) {
	o, err := answer.New(&stubSearcher{}, slowGenerator{}, answer.WithTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, err = o.Answer(context.Background(), "tok", "q", 5, nil)
	assert.ErrorIs(t, err, errdefs.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := answer.New(nil, &llm.RecordingGenerator{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}
