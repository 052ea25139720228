package sanitize

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

const (
	// MaxFilenameLength bounds stored document names.
	MaxFilenameLength = 255

	// MaxTokenLength bounds tenant tokens accepted from clients.
	MaxTokenLength = 128

	// DocumentExtension is the only accepted upload type.
	DocumentExtension = ".pdf"
)

var (
	// ErrInvalidToken is returned for missing or malformed tenant tokens.
	ErrInvalidToken = fmt.Errorf("invalid tenant token: %w", errdefs.ErrInvalidInput)

	// ErrInvalidFilename is returned for unusable document names.
	ErrInvalidFilename = fmt.Errorf("invalid filename: %w", errdefs.ErrInvalidInput)

	// ErrUnsupportedType is returned for uploads that are not PDFs.
	ErrUnsupportedType = fmt.Errorf("unsupported file type, only pdf is accepted: %w", errdefs.ErrInvalidInput)
)

// ValidateToken checks a client-supplied tenant token. Tokens are opaque,
// but must be non-empty printable text of bounded length.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if len(token) > MaxTokenLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidToken, MaxTokenLength)
	}
	if !printable(token) {
		return fmt.Errorf("%w: contains control characters", ErrInvalidToken)
	}
	return nil
}

// ValidateFilename checks a document name used as a catalog and filter key.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFilename)
	}
	if len(name) > MaxFilenameLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidFilename, MaxFilenameLength)
	}
	if !printable(name) {
		return fmt.Errorf("%w: contains control characters", ErrInvalidFilename)
	}
	return nil
}

// DocumentName derives the document filename from an uploaded file name:
// directory components are dropped and the .pdf extension (any case) is
// removed. Only the final extension is stripped, so "q3.report.pdf" becomes
// "q3.report".
func DocumentName(upload string) (string, error) {
	base := path.Base(strings.ReplaceAll(upload, "\\", "/"))
	if len(base) <= len(DocumentExtension) || !strings.EqualFold(base[len(base)-len(DocumentExtension):], DocumentExtension) {
		return "", ErrUnsupportedType
	}

	name := strings.TrimSpace(base[:len(base)-len(DocumentExtension)])
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
