// Package normalize canonicalizes user-entered text before it is compared or stored.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Label trims surrounding whitespace and composes the string to NFC, so
// "Gabriel García Márquez" typed with combining accents and with precomposed
// characters map to the same unique label.
func Label(s string) string {
	s = strings.TrimSpace(s)
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// Fold returns a caseless form of s for case-insensitive matching.
// "Straße" and "STRASSE" fold to the same value.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Labels normalizes every entry, dropping blanks and later duplicates while
// keeping first-seen order.
func Labels(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		l := Label(s)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
