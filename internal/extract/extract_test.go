package extract

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/extract/pdftest"
)

func extractBytes(t *testing.T, e *PDFExtractor, data []byte) ([]Page, error) {
	t.Helper()
	return e.Extract(context.Background(), bytes.NewReader(data), int64(len(data)))
}

func TestPDFExtractor_Pages(t *testing.T) {
	e := NewPDFExtractor(Options{})

	pages, err := extractBytes(t, e, pdftest.Build("Flood damage is covered", "Fire damage is excluded"))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "Flood damage is covered")
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "Fire damage is excluded")
}

func TestPDFExtractor_SkipsBlankPages(t *testing.T) {
	e := NewPDFExtractor(Options{})

	pages, err := extractBytes(t, e, pdftest.Build("first", "", "third"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 3, pages[1].Number)
}

func TestPDFExtractor_NoText(t *testing.T) {
	e := NewPDFExtractor(Options{})

	pages, err := extractBytes(t, e, pdftest.Build(""))
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestPDFExtractor_InvalidInput(t *testing.T) {
	e := NewPDFExtractor(Options{})

	tests := map[string][]byte{
		"empty":     nil,
		"plaintext": []byte("this is not a pdf"),
		"truncated": pdftest.Build("hello")[:40],
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := extractBytes(t, e, data)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPDF)
			assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
		})
	}
}

func TestPDFExtractor_MaxPages(t *testing.T) {
	e := NewPDFExtractor(Options{MaxPages: 1})

	_, err := extractBytes(t, e, pdftest.Build("a", "b"))
	assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
}

func TestPDFExtractor_Cancelled(t *testing.T) {
	e := NewPDFExtractor(Options{})
	data := pdftest.Build("a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, context.Canceled)
}
