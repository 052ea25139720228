// Package textnorm canonicalizes raw extracted PDF text before it is chunked
// and embedded.
package textnorm

import (
	"regexp"
	"strings"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

var (
	// artifacts are removed or replaced before anything else.
	artifacts = strings.NewReplacer(
		"â€™", "", // UTF-8 right single quote decoded as cp1252
		"\u00a0", " ",
		"'", "",
	)

	padder = newPunctuationPadder()

	// camelBoundary matches a capitalized word glued to a preceding word character.
	camelBoundary = regexp.MustCompile(`\B([A-Z][a-z])`)

	brackets = strings.NewReplacer("(", "", ")", "", "[", "", "]", "", "{", "", "}", "")

	horizontalSpace = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankLines      = regexp.MustCompile(`\n( ?\n)+`)
)

func newPunctuationPadder() *strings.Replacer {
	pairs := make([]string, 0, 2*len(asciiPunctuation))
	for _, r := range asciiPunctuation {
		pairs = append(pairs, string(r), " "+string(r)+" ")
	}
	return strings.NewReplacer(pairs...)
}

// Normalize returns the canonical form of raw:
//
//  1. mis-encoded apostrophes and ASCII apostrophes are removed, NBSP becomes a space
//  2. every ASCII punctuation mark is surrounded by spaces
//  3. capitalized words glued to a previous word are split ("fooBar" -> "foo Bar")
//  4. bracket characters are dropped
//  5. runs of horizontal whitespace collapse to one space, blank line runs
//     collapse to a single paragraph break, and the result is trimmed and
//     lower-cased
//
// Line breaks survive so the splitter can prefer paragraph boundaries.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	s := artifacts.Replace(raw)
	s = padder.Replace(s)
	s = camelBoundary.ReplaceAllString(s, " $1")
	s = brackets.Replace(s)

	s = horizontalSpace.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " \n", "\n")
	s = strings.ReplaceAll(s, "\n ", "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")

	return strings.ToLower(strings.TrimSpace(s))
}
