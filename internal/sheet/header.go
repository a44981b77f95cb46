// Package sheet reads monthly attendance workbooks: header normalization,
// column lookup, cell extraction, duration parsing and layout detection.
package sheet

import (
	"strings"

	"github.com/sells-group/staff-eval/internal/resolve"
)

// NormalizeHeader canonicalizes a header cell: diacritics stripped,
// uppercased, every character outside [A-Z0-9 ] removed, spaces collapsed.
// "Tempo Médio (Regulação)" becomes "TEMPO MEDIO REGULACAO".
func NormalizeHeader(s string) string {
	s = strings.ToUpper(resolve.StripMarks(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Headers is a normalized header row.
type Headers struct {
	keys  []string
	index map[string]int
}

// NewHeaders normalizes a raw header row. When two columns normalize to the
// same key the leftmost one wins exact lookups.
func NewHeaders(raw []string) Headers {
	h := Headers{
		keys:  make([]string, len(raw)),
		index: make(map[string]int, len(raw)),
	}
	for i, cell := range raw {
		key := NormalizeHeader(cell)
		h.keys[i] = key
		if key == "" {
			continue
		}
		if _, dup := h.index[key]; !dup {
			h.index[key] = i
		}
	}
	return h
}

// Len returns the number of columns in the header row.
func (h Headers) Len() int {
	return len(h.keys)
}

// Key returns the normalized header of column i, or "" when out of range.
func (h Headers) Key(i int) string {
	if i < 0 || i >= len(h.keys) {
		return ""
	}
	return h.keys[i]
}

// Keys returns the normalized header row.
func (h Headers) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Locate resolves a logical field to a column index. Candidates are tried in
// precedence order, first as exact matches against the normalized headers,
// then as substrings of each header (left to right). It returns -1, false
// when nothing matches.
func (h Headers) Locate(candidates ...string) (int, bool) {
	norm := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if k := NormalizeHeader(c); k != "" {
			norm = append(norm, k)
		}
	}

	for _, c := range norm {
		if i, ok := h.index[c]; ok {
			return i, true
		}
	}

	for _, c := range norm {
		for i, key := range h.keys {
			if key != "" && strings.Contains(key, c) {
				return i, true
			}
		}
	}

	return -1, false
}
