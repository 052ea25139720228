// Package extract turns uploaded PDF bytes into per-page text.
//
// Documents are structurally validated with pdfcpu in relaxed mode before
// text extraction with ledongthuc/pdf, so malformed uploads fail fast as
// invalid input instead of surfacing as parser panics deep in extraction.
package extract

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tenantrag/internal/chunker"
	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/logging"
)

// Page is one page of extracted text, numbered from 1.
type Page = chunker.Page

// ErrInvalidPDF is returned when the upload is not a readable PDF.
var ErrInvalidPDF = fmt.Errorf("invalid pdf: %w", errdefs.ErrInvalidInput)

// Extractor reads page text from a document.
type Extractor interface {
	Extract(ctx context.Context, r io.ReaderAt, size int64) ([]Page, error)
}

// Options configures a PDFExtractor.
type Options struct {
	// SkipValidation disables the pdfcpu structural check.
	SkipValidation bool

	// MaxPages rejects documents with more pages. Zero means unlimited.
	MaxPages int

	Logger *logging.Logger
}

// PDFExtractor extracts text with ledongthuc/pdf after pdfcpu validation.
type PDFExtractor struct {
	opts   Options
	logger *logging.Logger
}

var disableConfigDir sync.Once

// NewPDFExtractor creates an extractor.
func NewPDFExtractor(opts Options) *PDFExtractor {
	// pdfcpu otherwise creates a config directory under the user's home.
	disableConfigDir.Do(func() { model.ConfigPath = "disable" })

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &PDFExtractor{opts: opts, logger: logger.Named("extract")}
}

// Extract returns the non-empty pages of the document in page order.
// A document with no text yields an empty slice and no error.
func (e *PDFExtractor) Extract(ctx context.Context, r io.ReaderAt, size int64) ([]Page, error) {
	if r == nil || size <= 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidPDF)
	}

	if !e.opts.SkipValidation {
		if err := validate(r, size); err != nil {
			return nil, err
		}
	}

	return e.readPages(ctx, r, size)
}

func validate(r io.ReaderAt, size int64) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(io.NewSectionReader(r, 0, size), conf); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	return nil
}

func (e *PDFExtractor) readPages(ctx context.Context, r io.ReaderAt, size int64) (pages []Page, err error) {
	// ledongthuc/pdf panics on some malformed content streams.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	total := reader.NumPage()
	if e.opts.MaxPages > 0 && total > e.opts.MaxPages {
		return nil, errdefs.InvalidInput("document has %d pages, limit is %d", total, e.opts.MaxPages)
	}

	pages = make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn(ctx, "skipping unreadable page", zap.Int("page", i), zap.Error(err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		pages = append(pages, Page{Number: i, Text: text})
	}

	e.logger.Debug(ctx, "extracted pdf", zap.Int("pages", total), zap.Int("text_pages", len(pages)))
	return pages, nil
}
