// Package hypothesis implements the Hypothesis Generator (spec §4.4): a
// single synchronous LLM call that turns a raw query into a structured
// Hypothesis, leniently parsed and falling back to a deterministic
// default on any failure.
package hypothesis

import (
	"context"
	"strings"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/llmjson"
	"github.com/jurisoracle/vrag/model"
)

// Generator produces hypotheses via an AIClient.
type Generator struct {
	ai     core.AIClient
	logger core.Logger
	model  string
	stats  *Stats
}

// Stats counts how often generation fell back to the default hypothesis,
// per spec §4.4 ("the statistics subsystem records fallback").
type Stats struct {
	Total     int64
	Fallbacks int64
}

// New builds a Generator. logger may be nil (defaults to a no-op).
func New(ai core.AIClient, logger core.Logger, modelName string) *Generator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Generator{ai: ai, logger: logger, model: modelName, stats: &Stats{}}
}

// Stats returns a snapshot of the fallback counters.
func (g *Generator) Stats() Stats {
	return Stats{Total: g.stats.Total, Fallbacks: g.stats.Fallbacks}
}

// rawHypothesis mirrors the wire shape an LLM is asked to produce; its
// fields are intentionally loose (strings, not enums) so lenient parsing
// can normalise case and near-miss values before converting to
// model.Hypothesis.
type rawHypothesis struct {
	QuestionType        string              `json:"question_type"`
	PrimaryIntent       string              `json:"primary_intent"`
	Confidence          string              `json:"confidence"`
	RequiredInformation []string            `json:"required_information"`
	InformationGaps     []rawInformationGap `json:"information_gaps"`
	Assumptions         []string            `json:"assumptions"`
	SuggestedSteps      []string            `json:"suggested_steps"`
	Keywords            []string            `json:"keywords"`
}

type rawInformationGap struct {
	Kind           string   `json:"kind"`
	Severity       string   `json:"severity"`
	SuggestedQuery string   `json:"suggested_query"`
	Examples       []string `json:"examples"`
}

// Generate runs the synchronous LLM call and returns a structurally
// valid Hypothesis (spec §4.4: "returned object valid per §3 schema even
// on failure"). contextSnippets is optional supporting evidence already
// gathered, included in the prompt if present.
func (g *Generator) Generate(ctx context.Context, queryText string, contextSnippets []string) model.Hypothesis {
	g.stats.Total++

	if g.ai == nil {
		return g.fallback(queryText, "no AI client configured")
	}

	prompt := buildPrompt(queryText, contextSnippets)
	resp, err := g.ai.GenerateResponse(ctx, prompt, &core.AIOptions{
		Model:       g.model,
		Temperature: 0.1,
		MaxTokens:   800,
	})
	if err != nil {
		return g.fallback(queryText, "llm call failed: "+err.Error())
	}

	var raw rawHypothesis
	if err := llmjson.ParseInto(resp.Content, &raw); err != nil {
		return g.fallback(queryText, "unparsable llm response: "+err.Error())
	}

	return normalize(raw, queryText)
}

func (g *Generator) fallback(queryText, reason string) model.Hypothesis {
	g.stats.Fallbacks++
	g.logger.Warn("hypothesis: falling back to default", map[string]interface{}{
		"reason": reason,
	})
	return model.Fallback(queryText)
}

func buildPrompt(queryText string, contextSnippets []string) string {
	var b strings.Builder
	b.WriteString("You analyse German administrative-law questions before they are answered.\n")
	b.WriteString("question_type must be one of: fact, comparison, procedural, calculation, opinion, timeline, causal, hypothetical.\n")
	b.WriteString("confidence must be one of: high, medium, low, unknown. A gap with severity=critical forbids confidence=high.\n")
	b.WriteString("Each information_gaps entry has kind, severity (critical|important|optional), suggested_query, examples.\n")
	b.WriteString("Respond with a single JSON object only, matching this shape:\n")
	b.WriteString(`{"question_type":"...","primary_intent":"...","confidence":"...","required_information":["..."],"information_gaps":[{"kind":"...","severity":"...","suggested_query":"...","examples":["..."]}],"assumptions":["..."],"suggested_steps":["..."],"keywords":["..."]}`)
	b.WriteString("\n\nQuery: ")
	b.WriteString(queryText)
	if len(contextSnippets) > 0 {
		b.WriteString("\n\nKnown context so far:\n")
		for _, s := range contextSnippets {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return b.String()
}
