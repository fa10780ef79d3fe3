// Package budget implements the Token Budget Calculator (spec §4.2): a
// deterministic, pure function from query/hypothesis/intent/resource
// counts to a TokenBudget. It never fails: an unknown intent falls back
// to the quick_answer base and ceiling, and the result is never below
// MinAllocated. The breakdown records no note about such a fallback.
package budget

import (
	"strings"
	"unicode"

	"github.com/jurisoracle/vrag/model"
)

// MinAllocated is the floor every TokenBudget must satisfy regardless of
// inputs (spec §8, "Budget bounds").
const MinAllocated = 250

// baseByIntent is the per-intent base token allocation table (spec
// §4.2). Intents outside this table fall back to the quick_answer base.
var baseByIntent = map[string]int{
	"quick_answer": 250,
	"explanation":  900,
	"analysis":     1500,
	"comparison":   1200,
	"procedural":   1100,
	"calculation":  700,
}

// ceilingByIntent bounds how high boosts may push the allocation for a
// given intent, independent of the model context window.
var ceilingByIntent = map[string]int{
	"quick_answer": 600,
	"explanation":  2200,
	"analysis":     3500,
	"comparison":   2800,
	"procedural":   2600,
	"calculation":  1800,
}

const defaultCeiling = 2000

// domainKeywords trigger the +400 domain boost when found in the query
// text (spec §4.2, "legal/admin domain keywords").
var domainKeywords = []string{
	"gesetz", "verordnung", "bescheid", "antrag", "behörde", "behoerde",
	"amt", "paragraph", "§", "verwaltung", "genehmigung", "frist",
	"widerspruch", "bußgeld", "bussgeld", "zustaendig", "zuständig",
}

// Input bundles everything the calculator needs. It carries no model
// name: the caller supplies ModelContext (for example from
// contextwindow.WindowFor), and the calculator is model-agnostic beyond
// the context-window/reserved-prompt clamp.
type Input struct {
	QueryText      string
	Hypothesis     model.Hypothesis
	Intent         string
	AgentCount     int
	ChunkCount     int
	ModelContext   int // 0 means "unknown": skip the context-window clamp
	ReservedPrompt int // 0 means "use 25% of ModelContext"
}

// Compute implements the deterministic calculation described in spec
// §4.2. It never returns an error: zero-value inputs produce
// MinAllocated, and an unknown intent is treated as quick_answer with
// its boosts still applied.
func Compute(in Input) model.TokenBudget {
	intent := strings.ToLower(strings.TrimSpace(in.Intent))
	base, ok := baseByIntent[intent]
	if !ok {
		intent = "quick_answer"
		base = baseByIntent[intent]
	}

	ceiling := ceilingByIntent[intent]
	if ceiling == 0 {
		ceiling = defaultCeiling
	}

	agentBoost := 150 * clampInt(in.AgentCount, 0, 6)
	chunkBoost := 60 * clampInt(in.ChunkCount, 0, 20)

	domainBoost := 0
	if containsDomainKeyword(in.QueryText) {
		domainBoost = 400
	}

	complexity := complexityScore(in.QueryText, in.Hypothesis)
	complexityBoost := 0
	if complexity >= 8 {
		complexityBoost = 300
	}

	// intent_boost is reported separately from base for diagnostics, but
	// the table above already folds it into base — there is no further
	// per-intent additive term beyond the table lookup.
	intentBoost := 0

	allocated := base + intentBoost + complexityBoost + agentBoost + chunkBoost + domainBoost

	upperBound := ceiling
	if in.ModelContext > 0 {
		reserved := in.ReservedPrompt
		if reserved == 0 {
			reserved = model.ReservedPrompt(in.ModelContext)
		}
		windowBound := in.ModelContext - reserved
		if windowBound < upperBound {
			upperBound = windowBound
		}
	}
	if upperBound < MinAllocated {
		upperBound = MinAllocated
	}

	allocated = clampInt(allocated, MinAllocated, upperBound)

	return model.TokenBudget{
		Allocated:       allocated,
		Base:            base,
		IntentBoost:     intentBoost,
		ComplexityBoost: complexityBoost,
		AgentBoost:      agentBoost,
		ChunkBoost:      chunkBoost,
		DomainBoost:     domainBoost,
		Ceiling:         ceiling,
		ModelContext:    in.ModelContext,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func containsDomainKeyword(queryText string) bool {
	lower := strings.ToLower(queryText)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// complexityScore produces a 0-10 integer estimate from query length,
// a rough entity-count proxy (capitalised word count), clause depth
// (comma/conjunction count), and the hypothesis's suggested step count.
func complexityScore(queryText string, h model.Hypothesis) int {
	score := 0

	runeLen := len([]rune(queryText))
	switch {
	case runeLen > 220:
		score += 3
	case runeLen > 120:
		score += 2
	case runeLen > 60:
		score += 1
	}

	capWords := 0
	for _, w := range strings.Fields(queryText) {
		r := []rune(w)
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			capWords++
		}
	}
	score += clampInt(capWords/2, 0, 3)

	clauses := strings.Count(queryText, ",") + strings.Count(strings.ToLower(queryText), " und ") +
		strings.Count(strings.ToLower(queryText), " oder ")
	score += clampInt(clauses, 0, 2)

	score += clampInt(len(h.SuggestedSteps)/2, 0, 2)

	return clampInt(score, 0, 10)
}
