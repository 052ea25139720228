// Package sanitize derives storage identifiers from untrusted input.
//
// Every component obtains a tenant's collection name from CollectionName;
// nothing else builds collection names. Names match ^[a-z0-9_]{1,64}$, the
// intersection of what Qdrant and chromem accept.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/tenantrag/internal/errdefs"
)

const (
	// MaxIdentifierLength is the maximum length of a collection name.
	MaxIdentifierLength = 64

	// HashSuffixLength is the length of the suffix added to truncated
	// identifiers: _<8-char-hash>.
	HashSuffixLength = 9

	// CollectionPrefix starts every tenant collection name.
	CollectionPrefix = "tenant_"
)

// ErrInvalidCollectionName is returned for names outside ^[a-z0-9_]{1,64}$.
var ErrInvalidCollectionName = fmt.Errorf("invalid collection name: %w", errdefs.ErrInvalidInput)

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Identifier lower-cases s and replaces every character outside [a-z0-9_]
// with an underscore. Results longer than MaxIdentifierLength are truncated
// with a hash suffix of the full value, so distinct long inputs stay distinct.
//
//	"3F2504E0-4F89-11D3-9A0C-0305E82C3301" -> "3f2504e0_4f89_11d3_9a0c_0305e82c3301"
func Identifier(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	out := b.String()
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out, MaxIdentifierLength)
	}
	return out
}

// CollectionName maps a tenant token to its collection name. The mapping is
// deterministic; an empty token yields an empty name, which ValidateCollectionName
// rejects.
func CollectionName(token string) string {
	if token == "" {
		return ""
	}
	name := CollectionPrefix + Identifier(token)
	if len(name) > MaxIdentifierLength {
		name = truncateWithHash(name, MaxIdentifierLength)
	}
	return name
}

// ValidateCollectionName checks name against the store naming rules.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, collectionNamePattern)
	}
	return nil
}

// truncateWithHash shortens s to max characters: <prefix>_<8-char-hash>.
func truncateWithHash(s string, max int) string {
	hash := sha256.Sum256([]byte(s))
	suffix := "_" + hex.EncodeToString(hash[:])[:8]
	return strings.TrimRight(s[:max-HashSuffixLength], "_") + suffix
}
