package planner

import (
	"context"
	"testing"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanResponse_SelectsTemplateByQuestionType(t *testing.T) {
	cases := map[model.QuestionType]Template{
		model.QuestionComparison:  TemplateComparison,
		model.QuestionTimeline:    TemplateTimeline,
		model.QuestionCalculation: TemplateCalculation,
		model.QuestionFact:        TemplateFactRetrieval,
	}
	for qt, want := range cases {
		plan := PlanResponse(Request{
			Query:      model.Query{Text: "q"},
			Hypothesis: model.Hypothesis{QuestionType: qt},
			Model:      "medium",
			Budget:     model.TokenBudget{Allocated: 500},
		})
		assert.Equal(t, want, plan.Template, "question type %s", qt)
	}
}

func TestPlanResponse_FillsEvidenceIntoPrompt(t *testing.T) {
	req := Request{
		Query:      model.Query{Text: "Wie lange dauert ein Bauantrag?"},
		Hypothesis: model.Hypothesis{QuestionType: model.QuestionFact},
		GatheredContext: []EvidenceCluster{
			{Label: "deadlines", Documents: []model.Document{{Content: "Die Frist betraegt 6 Wochen."}}},
		},
		Model:  "medium",
		Budget: model.TokenBudget{Allocated: 500},
	}
	plan := PlanResponse(req)
	assert.Contains(t, plan.Prompt, "Wie lange dauert ein Bauantrag?")
	assert.Contains(t, plan.Prompt, "Die Frist betraegt 6 Wochen.")
}

func TestPlanResponse_FitsWithinContextWindow(t *testing.T) {
	req := Request{
		Query:      model.Query{Text: "q"},
		Hypothesis: model.Hypothesis{QuestionType: model.QuestionFact},
		Model:      "small",
		Budget:     model.TokenBudget{Allocated: 500},
	}
	plan := PlanResponse(req)
	assert.NotEmpty(t, plan.WindowStrategy)
}

type fakeClient struct {
	content          string
	completionTokens int
}

func (f *fakeClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	return &core.AIResponse{
		Content: f.content,
		Usage:   core.TokenUsage{CompletionTokens: f.completionTokens},
	}, nil
}

func TestStreamRunner_Generate_NoTruncationReturnsAsIs(t *testing.T) {
	client := &fakeClient{content: "the answer", completionTokens: 10}
	r := NewStreamRunner(client, nil)
	plan := PlanResponse(Request{
		Query:      model.Query{Text: "q"},
		Hypothesis: model.Hypothesis{QuestionType: model.QuestionFact},
		Model:      "medium",
		Budget:     model.TokenBudget{Allocated: 500},
	})
	resp, err := r.Generate(context.Background(), plan, Request{Budget: model.TokenBudget{Allocated: 500}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "the answer", resp.Content)
}

func TestStreamRunner_Generate_TruncationMarksByDefault(t *testing.T) {
	client := &fakeClient{content: "partial", completionTokens: 500}
	r := NewStreamRunner(client, nil)
	req := Request{Budget: model.TokenBudget{Allocated: 500}}
	plan := PlanResponse(Request{
		Query:      model.Query{Text: "q"},
		Hypothesis: model.Hypothesis{QuestionType: model.QuestionFact},
		Model:      "medium",
		Budget:     model.TokenBudget{Allocated: 500},
	})
	resp, err := r.Generate(context.Background(), plan, req, nil)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "[continues]")
}

func TestStreamRunner_Generate_ContinuePolicyIssuesFollowUp(t *testing.T) {
	client := &fakeClient{content: "first part", completionTokens: 500}
	r := NewStreamRunner(client, nil)
	req := Request{Budget: model.TokenBudget{Allocated: 500}, OnTruncation: OnTruncationContinue, Model: "medium"}
	plan := PlanResponse(req)

	resp, err := r.Generate(context.Background(), plan, req, nil)
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "first part")
}
