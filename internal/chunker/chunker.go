// Package chunker turns extracted PDF pages into bounded, overlapping,
// normalized chunks ready for embedding.
//
// Splitting happens in two stages. Text is first merged and normalized per
// page, then each page is split by a recursive character splitter that
// measures length in tokens (whitespace-delimited words of normalized text,
// where every punctuation mark is its own token). Chunks never span pages.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
	"github.com/fyrsmithlabs/tenantrag/internal/textnorm"
)

const (
	// DefaultChunkSize is the target chunk length in tokens.
	DefaultChunkSize = 300
	// DefaultChunkOverlap is the number of tokens shared by neighbouring chunks.
	DefaultChunkOverlap = 30
)

// ErrEmptyDocument is returned when no page yields any text.
var ErrEmptyDocument = fmt.Errorf("document has no extractable text: %w", errdefs.ErrEmptyDocument)

// Page is raw text extracted from one PDF page (or one element of it).
// Several Pages may share a Number.
type Page struct {
	Number int
	Text   string
}

// Chunk is the unit of embedding and retrieval.
type Chunk struct {
	Filename string
	Page     int
	Index    int // position within the document, starting at 0
	Text     string
}

// Config controls chunk sizing.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
}

// Validate checks the sizing is usable.
func (c Config) Validate() error {
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be within [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	}
	return nil
}

// Chunker splits documents. It is safe for concurrent use.
type Chunker struct {
	splitter textsplitter.TextSplitter
}

// New creates a Chunker.
func New(cfg Config) (*Chunker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", " ", ""}),
			textsplitter.WithLenFunc(TokenCount),
		),
	}, nil
}

// Chunk merges pages, normalizes each page and splits it. Zero pages, or
// pages that normalize to nothing, return ErrEmptyDocument.
func (c *Chunker) Chunk(pages []Page, filename string) ([]Chunk, error) {
	merged := MergePages(pages)

	var chunks []Chunk
	for _, page := range merged {
		text := textnorm.Normalize(page.Text)
		if text == "" {
			continue
		}

		parts, err := c.splitter.SplitText(text)
		if err != nil {
			return nil, fmt.Errorf("split page %d: %w", page.Number, err)
		}

		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			chunks = append(chunks, Chunk{
				Filename: filename,
				Page:     page.Number,
				Index:    len(chunks),
				Text:     part,
			})
		}
	}

	if len(chunks) == 0 {
		return nil, ErrEmptyDocument
	}
	return chunks, nil
}

// MergePages concatenates the text of pages sharing a number, in input
// order, and returns one Page per number in ascending order.
func MergePages(pages []Page) []Page {
	byNumber := make(map[int]*strings.Builder, len(pages))
	for _, p := range pages {
		b, ok := byNumber[p.Number]
		if !ok {
			b = &strings.Builder{}
			byNumber[p.Number] = b
		} else if b.Len() > 0 && p.Text != "" {
			b.WriteByte(' ')
		}
		b.WriteString(p.Text)
	}

	merged := make([]Page, 0, len(byNumber))
	for n, b := range byNumber {
		merged = append(merged, Page{Number: n, Text: b.String()})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Number < merged[j].Number })
	return merged
}

// TokenCount measures text in whitespace-delimited tokens.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}
