package vectorstore

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

func TestQdrantConfig_Defaults(t *testing.T) {
	cfg := QdrantConfig{Host: "localhost"}
	cfg.ApplyDefaults()

	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	require.NoError(t, cfg.Validate())
}

func TestQdrantConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  QdrantConfig
	}{
		{"missing host", QdrantConfig{Port: 6334}},
		{"bad port", QdrantConfig{Host: "q", Port: 70000}},
		{"negative retries", QdrantConfig{Host: "q", Port: 6334, MaxRetries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unavailable", status.Error(grpccodes.Unavailable, "down"), true},
		{"deadline", status.Error(grpccodes.DeadlineExceeded, "slow"), true},
		{"exhausted", status.Error(grpccodes.ResourceExhausted, "busy"), true},
		{"not found", status.Error(grpccodes.NotFound, "gone"), false},
		{"invalid", status.Error(grpccodes.InvalidArgument, "bad"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func TestQdrantError(t *testing.T) {
	assert.ErrorIs(t, qdrantError("search", status.Error(grpccodes.NotFound, "x")), ErrCollectionNotFound)
	assert.ErrorIs(t, qdrantError("create", status.Error(grpccodes.AlreadyExists, "x")), errdefs.ErrAlreadyExists)
	assert.ErrorIs(t, qdrantError("upsert", status.Error(grpccodes.InvalidArgument, "x")), errdefs.ErrInvalidInput)
	assert.ErrorIs(t, qdrantError("upsert", status.Error(grpccodes.Unavailable, "x")), errdefs.ErrUpstream)
	assert.ErrorIs(t, qdrantError("upsert", errors.New("x")), errdefs.ErrUpstream)
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id).GetUuid())

	derived := pointID("chunk-7").GetUuid()
	_, err := uuid.Parse(derived)
	require.NoError(t, err)
	assert.Equal(t, derived, pointID("chunk-7").GetUuid())
	assert.NotEqual(t, derived, pointID("chunk-8").GetUuid())
}

func TestQdrantHit(t *testing.T) {
	r := Row{ID: "row-1", Filename: "report", Page: 4, Text: "hello"}
	p := &qdrant.ScoredPoint{
		Id:      pointID(r.ID),
		Score:   0.5,
		Payload: rowPayload(r),
	}

	h := qdrantHit(p)
	assert.Equal(t, "row-1", h.ID)
	assert.Equal(t, "report", h.Filename)
	assert.Equal(t, 4, h.Page)
	assert.Equal(t, "hello", h.Text)
	assert.InDelta(t, 0.25, h.Distance, 1e-6)
}

func TestFilenameFilter(t *testing.T) {
	assert.Nil(t, filenameFilter())

	f := filenameFilter("a", "b")
	require.NotNil(t, f)
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, fieldFilename, field.GetKey())
	assert.Equal(t, []string{"a", "b"}, field.GetMatch().GetKeywords().GetStrings())
}
