package thesaurus

import "strings"

// Expand returns up to max query variants for q, built by substituting
// any thesaurus seed terms found in q with their registered variants. It
// is case-preserving on the original query and always includes q itself
// first, regardless of max (spec §8, "Round-trip: query expansion
// preserves the original").
func (t *Thesaurus) Expand(q string, max int) []string {
	if max < 1 {
		max = 1
	}

	seen := map[string]bool{strings.ToLower(strings.TrimSpace(q)): true}
	out := []string{q}

	lower := strings.ToLower(q)
	words := strings.Fields(lower)

	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()\"'")
		variants := t.VariantsFor(w)
		for _, v := range variants {
			if len(out) >= max {
				return out
			}
			candidate := replaceCaseInsensitive(q, w, v)
			key := strings.ToLower(candidate)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, candidate)
		}
	}

	return out
}

// replaceCaseInsensitive swaps the first case-insensitive occurrence of
// old in s for replacement, preserving the rest of s's original case.
func replaceCaseInsensitive(s, old, replacement string) string {
	lowerS := strings.ToLower(s)
	idx := strings.Index(lowerS, old)
	if idx == -1 {
		return s
	}
	return s[:idx] + replacement + s[idx+len(old):]
}
