package resolve

import (
	"sort"

	"github.com/agext/levenshtein"
)

// DefaultThreshold is the minimum similarity accepted as a name match.
const DefaultThreshold = 0.85

// Levenshtein returns the edit distance between a and b, counted in runes,
// with unit costs for insertion, deletion and substitution.
func Levenshtein(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// Similarity returns 1 - levenshtein(a,b)/max(len(a),len(b)), in [0,1].
// It is 0 when either side is empty (name absent).
func Similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(max(la, lb))
}

// Candidate is a roster entry eligible for matching.
type Candidate struct {
	ID   string
	Name string
}

// Match is the outcome of a successful lookup.
type Match struct {
	ID         string
	Name       string
	Similarity float64
	// Ambiguous lists other candidates that scored exactly as high as the
	// chosen one. They are not updated; callers flag them for review.
	Ambiguous []string
}

type indexed struct {
	Candidate
	key string
}

// Matcher selects the best roster candidate for a name. It holds a fixed
// snapshot of candidates and is safe for concurrent use.
type Matcher struct {
	threshold  float64
	candidates []indexed
}

// NewMatcher builds a Matcher over a snapshot of candidates. Names are
// normalized once here. A threshold <= 0 uses DefaultThreshold.
func NewMatcher(threshold float64, candidates []Candidate) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	idx := make([]indexed, 0, len(candidates))
	for _, c := range candidates {
		key := NormalizeName(c.Name)
		if key == "" {
			continue
		}
		idx = append(idx, indexed{Candidate: c, key: key})
	}
	// Ascending id order makes the first of several equal maxima the
	// lowest id.
	sort.SliceStable(idx, func(i, j int) bool { return idx[i].ID < idx[j].ID })

	return &Matcher{threshold: threshold, candidates: idx}
}

// Threshold returns the acceptance threshold in use.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Len returns the number of usable candidates.
func (m *Matcher) Len() int {
	return len(m.candidates)
}

// Best returns the candidate with the highest similarity to name, provided
// it reaches the threshold. Ties go to the lowest candidate id.
func (m *Matcher) Best(name string) (Match, bool) {
	key := NormalizeName(name)
	if key == "" {
		return Match{}, false
	}

	var best Match
	found := false
	for _, c := range m.candidates {
		sim := Similarity(key, c.key)
		if sim < m.threshold {
			continue
		}
		switch {
		case !found || sim > best.Similarity:
			best = Match{ID: c.ID, Name: c.Name, Similarity: sim}
			found = true
		case sim == best.Similarity:
			best.Ambiguous = append(best.Ambiguous, c.ID)
		}
	}
	return best, found
}
