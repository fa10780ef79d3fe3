// Package planner implements the Adaptive Response Planner (spec §4.9):
// it picks a prompt framework from the hypothesis's question type, fills
// it with retrieved evidence, fits the result to the model's context
// window, and drives streaming generation, handling mid-generation
// overflow.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/jurisoracle/vrag/contextwindow"
	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
)

// Template names the prompt framework chosen for a question type, per
// spec §4.9 ("fact-retrieval / comparison / timeline / calculation /
// visual").
type Template string

const (
	TemplateFactRetrieval Template = "fact_retrieval"
	TemplateComparison    Template = "comparison"
	TemplateTimeline      Template = "timeline"
	TemplateCalculation   Template = "calculation"
	TemplateVisual        Template = "visual"
)

// templateFor maps a Hypothesis's question type to its prompt framework.
// Question types without a dedicated framework fall back to
// fact-retrieval, the most general template.
func templateFor(qt model.QuestionType) Template {
	switch qt {
	case model.QuestionComparison:
		return TemplateComparison
	case model.QuestionTimeline:
		return TemplateTimeline
	case model.QuestionCalculation:
		return TemplateCalculation
	case model.QuestionProcedural, model.QuestionCausal, model.QuestionHypothetical, model.QuestionOpinion:
		return TemplateFactRetrieval
	default:
		return TemplateFactRetrieval
	}
}

// OnTruncationPolicy controls what happens when the LLM backend reports
// mid-generation truncation (spec §4.9).
type OnTruncationPolicy string

const (
	OnTruncationMark     OnTruncationPolicy = "mark"
	OnTruncationContinue OnTruncationPolicy = "continue"
)

// EvidenceCluster is one group of retrieved documents the template
// weaves into the prompt, labelled for the section it backs (e.g.
// "definition", "deadline", "fee").
type EvidenceCluster struct {
	Label     string
	Documents []model.Document
}

// Request bundles everything plan_response needs.
type Request struct {
	Query           model.Query
	Hypothesis      model.Hypothesis
	GatheredContext []EvidenceCluster
	Budget          model.TokenBudget
	Model           string
	OnTruncation    OnTruncationPolicy
}

// Plan is the {prompt, effective_budget, window_strategy} result of
// plan_response.
type Plan struct {
	Template       Template
	Prompt         string
	Messages       []contextwindow.Message
	EffectiveBudget int
	WindowStrategy contextwindow.Strategy
	SuggestedModel string
}

// PlanResponse implements spec §4.9's plan_response operation: chooses a
// template, fills it from req.GatheredContext, and fits the result to
// req.Model's context window via the Context Window Manager.
func PlanResponse(req Request) Plan {
	tmpl := templateFor(req.Hypothesis.QuestionType)
	prompt := fillTemplate(tmpl, req)

	messages := []contextwindow.Message{
		{Role: "system", Content: systemPromptFor(tmpl)},
		{Role: "user", Content: prompt},
	}

	fit := contextwindow.Fit(messages, req.Budget.Allocated, req.Model)

	return Plan{
		Template:        tmpl,
		Prompt:          prompt,
		Messages:        fit.FinalMessages,
		EffectiveBudget: req.Budget.Allocated,
		WindowStrategy:  fit.Strategy,
		SuggestedModel:  fit.SuggestedModel,
	}
}

func systemPromptFor(tmpl Template) string {
	base := "You are a legal research assistant answering questions about German administrative law. " +
		"Cite every factual claim using the numbered sources provided. If the evidence does not cover " +
		"part of the question, say so rather than guessing."
	switch tmpl {
	case TemplateComparison:
		return base + " Structure the answer as a side-by-side comparison of the options in question."
	case TemplateTimeline:
		return base + " Structure the answer as a chronological sequence of deadlines or stages."
	case TemplateCalculation:
		return base + " Show the calculation step by step before stating the final figure."
	case TemplateVisual:
		return base + " Where a table or structured list would clarify the answer, use one."
	default:
		return base
	}
}

func fillTemplate(tmpl Template, req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", req.Query.Text)

	if len(req.Hypothesis.Assumptions) > 0 {
		b.WriteString("Assumptions: ")
		b.WriteString(strings.Join(req.Hypothesis.Assumptions, "; "))
		b.WriteString("\n\n")
	}

	for _, cluster := range req.GatheredContext {
		if len(cluster.Documents) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n", cluster.Label)
		for i, doc := range cluster.Documents {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, doc.Content)
		}
		b.WriteString("\n")
	}

	switch tmpl {
	case TemplateComparison:
		b.WriteString("Compare the relevant options explicitly, noting where they differ.\n")
	case TemplateTimeline:
		b.WriteString("Order every deadline or stage chronologically.\n")
	case TemplateCalculation:
		b.WriteString("Walk through the calculation, citing the source for each factor.\n")
	}

	return b.String()
}

// StreamRunner invokes a core.StreamingAIClient (or falls back to
// core.AIClient.GenerateResponse for a provider that doesn't stream) and
// emits each chunk through onChunk, matching spec §4.9's "streams chunks
// are emitted as step_progress events on the root LLM step" by letting
// the caller translate onChunk into a progress event without the
// planner depending on the progress package directly.
type StreamRunner struct {
	Client core.AIClient
	Logger core.Logger
}

// NewStreamRunner builds a StreamRunner backed by client, which may also
// implement core.StreamingAIClient for incremental output.
func NewStreamRunner(client core.AIClient, logger core.Logger) *StreamRunner {
	return &StreamRunner{Client: client, Logger: logger}
}

// Generate runs plan's messages through the configured client, handling
// mid-generation overflow per the request's on_truncation policy:
// `mark` appends a "[continues]" marker and stops; `continue` reissues a
// follow-up call seeded with the accumulated text, subject to the same
// window management as the original call.
func (r *StreamRunner) Generate(ctx context.Context, plan Plan, req Request, onChunk core.StreamCallback) (*core.AIResponse, error) {
	prompt, system := flattenMessages(plan.Messages)
	options := &core.AIOptions{
		Model:        req.Model,
		MaxTokens:    plan.EffectiveBudget,
		SystemPrompt: system,
	}

	resp, err := r.generateOnce(ctx, prompt, options, onChunk)
	if err != nil {
		return nil, err
	}

	if !truncated(resp, plan.EffectiveBudget) {
		return resp, nil
	}

	if req.OnTruncation != OnTruncationContinue {
		resp.Content += "\n[continues]"
		return resp, nil
	}

	continuation := req.
		withAccumulated(resp.Content)
	continuationPlan := PlanResponse(continuation)
	continuationPrompt, continuationSystem := flattenMessages(continuationPlan.Messages)
	options = &core.AIOptions{
		Model:        req.Model,
		MaxTokens:    continuationPlan.EffectiveBudget,
		SystemPrompt: continuationSystem,
	}
	more, err := r.generateOnce(ctx, continuationPrompt, options, onChunk)
	if err != nil {
		return resp, err
	}
	resp.Content += more.Content
	resp.Usage.CompletionTokens += more.Usage.CompletionTokens
	resp.Usage.TotalTokens += more.Usage.TotalTokens
	return resp, nil
}

func (r *StreamRunner) generateOnce(ctx context.Context, prompt string, options *core.AIOptions, onChunk core.StreamCallback) (*core.AIResponse, error) {
	if streamer, ok := r.Client.(core.StreamingAIClient); ok && onChunk != nil {
		return streamer.StreamResponse(ctx, prompt, options, onChunk)
	}
	return r.Client.GenerateResponse(ctx, prompt, options)
}

func truncated(resp *core.AIResponse, budget int) bool {
	return resp != nil && budget > 0 && resp.Usage.CompletionTokens >= budget
}

// withAccumulated returns a copy of req with the assistant's
// accumulated text folded in as additional evidence, for a continuation
// call.
func (req Request) withAccumulated(accumulated string) Request {
	clone := req
	clone.GatheredContext = append(append([]EvidenceCluster(nil), req.GatheredContext...), EvidenceCluster{
		Label:     "Previously generated (continue from here)",
		Documents: []model.Document{{ID: "continuation", Content: accumulated}},
	})
	return clone
}

func flattenMessages(messages []contextwindow.Message) (prompt string, system string) {
	var userParts []string
	for _, m := range messages {
		if strings.EqualFold(m.Role, "system") {
			system = m.Content
			continue
		}
		userParts = append(userParts, m.Content)
	}
	return strings.Join(userParts, "\n\n"), system
}
