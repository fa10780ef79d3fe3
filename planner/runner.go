package planner

import (
	"context"
	"fmt"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
)

// Runner adapts StreamRunner to process.LLMStepRunner, so the Process
// Executor can dispatch a root LLM step without depending on the planner
// package's types directly.
type Runner struct {
	Stream *StreamRunner
	Logger core.Logger
}

// New builds a Runner.
func New(client core.AIClient, logger core.Logger) *Runner {
	return &Runner{Stream: NewStreamRunner(client, logger), Logger: logger}
}

// RunLLMStep implements process.LLMStepRunner. It expects step.Inputs to
// carry "hypothesis" (model.Hypothesis), "budget" (model.TokenBudget),
// and optionally "model"/"on_truncation"; gathered_context is assembled
// from every dependency's StepResult.Value, treating a
// model.HybridResult as one evidence cluster labelled by the
// dependency's step id and anything else as an opaque cluster of zero
// documents (so quality/aggregate steps with no documents contribute
// nothing rather than panicking).
func (r *Runner) RunLLMStep(ctx context.Context, tree *model.ProcessTree, step *model.ProcessStep) (*model.StepResult, error) {
	hypothesis, _ := step.Inputs["hypothesis"].(model.Hypothesis)
	budget, _ := step.Inputs["budget"].(model.TokenBudget)
	modelName, _ := step.Inputs["model"].(string)
	if modelName == "" {
		modelName = "medium"
	}
	onTruncation := OnTruncationMark
	if v, _ := step.Inputs["on_truncation"].(string); v == string(OnTruncationContinue) {
		onTruncation = OnTruncationContinue
	}

	req := Request{
		Query:           tree.Query,
		Hypothesis:      hypothesis,
		GatheredContext: gatherEvidence(tree, step),
		Budget:          budget,
		Model:           modelName,
		OnTruncation:    onTruncation,
	}

	plan := PlanResponse(req)

	var progressCallback core.StreamCallback
	if progressSink, ok := step.Inputs["on_chunk"].(core.StreamCallback); ok {
		progressCallback = progressSink
	}

	resp, err := r.Stream.Generate(ctx, plan, req, progressCallback)
	if err != nil {
		return nil, core.NewFrameworkError("planner.RunLLMStep", core.KindLLMBackendErr, err).WithID(step.ID)
	}

	return &model.StepResult{
		Value:   resp,
		Summary: fmt.Sprintf("generated response via %s (%s template, %s window strategy)", modelName, plan.Template, plan.WindowStrategy),
	}, nil
}

func gatherEvidence(tree *model.ProcessTree, step *model.ProcessStep) []EvidenceCluster {
	clusters := make([]EvidenceCluster, 0, len(step.DependsOn))
	for _, depID := range step.DependsOn {
		dep := tree.Steps[depID]
		if dep == nil || dep.Result == nil {
			continue
		}
		switch v := dep.Result.Value.(type) {
		case model.HybridResult:
			clusters = append(clusters, EvidenceCluster{Label: depID, Documents: v.Results})
		case map[string]interface{}:
			for key, inner := range v {
				if hr, ok := inner.(model.HybridResult); ok {
					clusters = append(clusters, EvidenceCluster{Label: depID + "." + key, Documents: hr.Results})
				}
			}
		}
	}
	return clusters
}
