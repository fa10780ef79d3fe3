// Package thesaurus holds the fixed German administrative-law synonym
// table used by the Hybrid Retrieval Engine's query expansion (spec
// §4.7). It is reified as immutable process-wide state, loaded once at
// startup and never mutated afterwards (spec §9, "Global singletons").
package thesaurus

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed thesaurus.yaml
var embeddedYAML []byte

type category struct {
	Seed     string   `yaml:"seed"`
	Variants []string `yaml:"variants"`
}

type document struct {
	Categories []category `yaml:"categories"`
}

// Thesaurus is a read-only lookup from a lowercase seed term to its
// variant terms. It is safe for concurrent use by multiple goroutines
// because it is never mutated after construction.
type Thesaurus struct {
	bySeed map[string][]string
}

// Load parses the embedded thesaurus.yaml into a Thesaurus. It panics on
// malformed embedded data since that would be a build-time defect, not a
// runtime condition callers can meaningfully recover from.
func Load() *Thesaurus {
	var doc document
	if err := yaml.Unmarshal(embeddedYAML, &doc); err != nil {
		panic("thesaurus: embedded thesaurus.yaml is malformed: " + err.Error())
	}

	t := &Thesaurus{bySeed: make(map[string][]string, len(doc.Categories))}
	for _, c := range doc.Categories {
		seed := strings.ToLower(strings.TrimSpace(c.Seed))
		if seed == "" {
			continue
		}
		t.bySeed[seed] = c.Variants
	}
	return t
}

// Len reports the number of seed categories loaded.
func (t *Thesaurus) Len() int {
	return len(t.bySeed)
}

// VariantsFor returns the variant terms registered for term, matched
// case-insensitively. The returned slice is never mutated by callers; it
// belongs to the Thesaurus.
func (t *Thesaurus) VariantsFor(term string) []string {
	return t.bySeed[strings.ToLower(strings.TrimSpace(term))]
}
