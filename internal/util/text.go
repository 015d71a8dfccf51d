package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces    = regexp.MustCompile(`\s+`)
	reSlugBad   = regexp.MustCompile(`[^a-z0-9._~\-]`)
	stripAccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeLabel collapses whitespace runs and trims the result.
func NormalizeLabel(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Slug converts a place name into an identifier-safe segment: accents
// stripped, lowercased, whitespace runs become "_" and anything outside
// [a-z0-9._~-] is dropped. Slug(Slug(s)) == Slug(s).
func Slug(name string) string {
	s, _, err := transform.String(stripAccent, NormalizeLabel(name))
	if err != nil {
		s = NormalizeLabel(name)
	}
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	return reSlugBad.ReplaceAllString(s, "")
}
