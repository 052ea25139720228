package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

func TestDocumentName(t *testing.T) {
	tests := []struct {
		upload  string
		want    string
		wantErr error
	}{
		{"policy.pdf", "policy", nil},
		{"Policy.PDF", "Policy", nil},
		{"q3.report.pdf", "q3.report", nil},
		{"/tmp/uploads/claims.pdf", "claims", nil},
		{`C:\Users\me\terms.pdf`, "terms", nil},
		{"notes.txt", "", ErrUnsupportedType},
		{"pdf", "", ErrUnsupportedType},
		{".pdf", "", ErrUnsupportedType},
		{"archive.pdf.zip", "", ErrUnsupportedType},
		{"  .pdf", "", ErrInvalidFilename},
		{strings.Repeat("n", 300) + ".pdf", "", ErrInvalidFilename},
	}

	for _, tt := range tests {
		t.Run(tt.upload, func(t *testing.T) {
			got, err := DocumentName(tt.upload)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, errdefs.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateToken(t *testing.T) {
	assert.NoError(t, ValidateToken("3f2504e0-4f89-11d3-9a0c-0305e82c3301"))
	assert.ErrorIs(t, ValidateToken(""), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken("abc\x00"), ErrInvalidToken)
	assert.ErrorIs(t, ValidateToken(strings.Repeat("t", 129)), ErrInvalidToken)
}

func TestValidateFilename(t *testing.T) {
	assert.NoError(t, ValidateFilename("policy"))
	assert.NoError(t, ValidateFilename("Résumé 2024"))
	assert.ErrorIs(t, ValidateFilename(" "), ErrInvalidFilename)
	assert.ErrorIs(t, ValidateFilename("line\nbreak"), ErrInvalidFilename)
}

func TestErrorStringsAreLowercase(t *testing.T) {
	for _, err := range []error{ErrInvalidToken, ErrInvalidFilename, ErrUnsupportedType, ErrInvalidCollectionName} {
		msg := err.Error()
		assert.Equal(t, strings.ToLower(msg[:1]), msg[:1], msg)
	}
}
