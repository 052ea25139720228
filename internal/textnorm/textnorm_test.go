package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t \n ", ""},
		{"lowercases", "Coverage Details", "coverage details"},
		{"pads punctuation", "covered, not excluded.", "covered , not excluded ."},
		{"removes apostrophes", "the insurer's duty", "the insurers duty"},
		{"removes mojibake apostrophe", "donâ€™t", "dont"},
		{"nbsp becomes space", "sum\u00a0insured", "sum insured"},
		{"splits glued words", "PolicyHolderName", "policy holder name"},
		{"keeps acronyms", "NASA rules", "nasa rules"},
		{"drops brackets", "see (section 4) [a] {b}", "see section 4 a b"},
		{"collapses spaces", "a    b\t\tc", "a b c"},
		{"keeps paragraph breaks", "line one\n\n\n\nline two\nline three", "line one\n\nline two\nline three"},
		{"hyphen and slash", "pre-existing/chronic", "pre - existing / chronic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Section 2.1 (Exclusions): pre-existing conditions aren't covered.",
		"TotalAmount: $1,200\u00a0USD",
		"a\n\n\nb",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}
