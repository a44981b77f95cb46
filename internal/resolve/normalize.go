// Package resolve links free-text person names to roster records.
package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripMarks decomposes s (NFD) and drops combining marks, so "João"
// becomes "Joao". On a transform failure the input is returned unchanged.
func StripMarks(s string) string {
	// Chained transformers keep state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName canonicalizes a person name for comparison:
//  1. NFD decomposition with combining marks removed
//  2. Uppercase
//  3. Every character outside [A-Z0-9 ] replaced by a space
//  4. Whitespace collapsed and trimmed
//
// A blank name yields "", which callers treat as "name absent".
// NormalizeName(NormalizeName(x)) == NormalizeName(x).
func NormalizeName(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}

	name = strings.ToUpper(StripMarks(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func isNameRune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' '
}
