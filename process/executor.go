package process

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/progress"
	"github.com/jurisoracle/vrag/registry"
	"github.com/jurisoracle/vrag/resilience"
	"github.com/jurisoracle/vrag/retrieval"
)

// defaultMaxParallel bounds simultaneous in-flight steps regardless of
// wave width, per spec §4.8.
const defaultMaxParallel = 5

// defaultStepTimeout applies when a step carries no timeout of its own.
const defaultStepTimeout = 30 * time.Second

// LLMStepRunner executes the root's final LLM step via the Response
// Planner. It is a separate interface (rather than a direct dependency
// on the planner package) so the executor can be tested without wiring
// a real LLM client.
type LLMStepRunner interface {
	RunLLMStep(ctx context.Context, tree *model.ProcessTree, step *model.ProcessStep) (*model.StepResult, error)
}

// Executor runs a ProcessTree to completion, emitting progress events as
// it goes. Zero Registry/Retrieval/LLM fields are tolerated: steps that
// need them degrade per spec §4.8 rather than panicking.
type Executor struct {
	Registry    *registry.Registry
	Retrieval   *retrieval.Engine
	LLM         LLMStepRunner
	MaxParallel int
	Logger      core.Logger
	Telemetry   core.Telemetry
}

// New builds an Executor with the spec-default max_parallel.
func New(reg *registry.Registry, retrievalEngine *retrieval.Engine, llm LLMStepRunner, logger core.Logger, telemetry core.Telemetry) *Executor {
	return &Executor{
		Registry:    reg,
		Retrieval:   retrievalEngine,
		LLM:         llm,
		MaxParallel: defaultMaxParallel,
		Logger:      logger,
		Telemetry:   telemetry,
	}
}

// Execute runs tree against sink, implementing the wave/retry/cancel
// algorithm of spec §4.8. It returns only a StepResult, never a Go
// error: terminal failures are communicated via the plan_failed or
// plan_cancelled event and a returned result with IsDegraded set and
// the reason in Summary, so callers don't need a second error-handling
// path on top of the progress stream.
func (e *Executor) Execute(ctx context.Context, tree *model.ProcessTree, sink *progress.Stream) *model.StepResult {
	maxParallel := e.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}

	sink.Publish(model.ProgressEvent{Type: model.EventPlanStarted})

	waves, err := Plan(tree)
	if err != nil {
		sink.Publish(model.ProgressEvent{
			Type:    model.EventPlanFailed,
			Payload: map[string]interface{}{"kind": core.KindOf(err), "error": err.Error()},
		})
		return &model.StepResult{IsDegraded: true, Summary: err.Error()}
	}

	if err := e.validateCapabilities(tree); err != nil {
		sink.Publish(model.ProgressEvent{
			Type:    model.EventPlanFailed,
			Payload: map[string]interface{}{"kind": core.KindOf(err), "error": err.Error()},
		})
		return &model.StepResult{IsDegraded: true, Summary: err.Error()}
	}

	for _, wave := range waves {
		select {
		case <-ctx.Done():
			sink.Publish(model.ProgressEvent{Type: model.EventPlanCancelled})
			return &model.StepResult{IsDegraded: true, Summary: "cancelled"}
		default:
		}

		abort := e.runWave(ctx, tree, wave, sink, maxParallel)
		if abort {
			if ctx.Err() != nil {
				sink.Publish(model.ProgressEvent{Type: model.EventPlanCancelled})
				return &model.StepResult{IsDegraded: true, Summary: "cancelled"}
			}
			sink.Publish(model.ProgressEvent{Type: model.EventPlanFailed})
			return &model.StepResult{IsDegraded: true, Summary: "aborted by step failure policy"}
		}
	}

	// The root step (typically AGGREGATE or LLM) sits at the deepest
	// wave by construction, since every other step it transitively
	// depends on must have a strictly smaller wave index; its Result was
	// already populated by the runWave loop above.
	root := tree.Root()
	result := root.Result
	if result == nil {
		result = &model.StepResult{IsDegraded: true, Summary: "root step did not produce a result"}
	}

	sink.Publish(model.ProgressEvent{
		Type:    model.EventPlanCompleted,
		Payload: map[string]interface{}{"summary": result.Summary},
	})
	return result
}

// validateCapabilities checks every AGENT step names a registered agent
// id, per spec §4.8 step 1 ("Validate that every agent/capability
// referenced by a step exists; missing capability -> plan_failed").
func (e *Executor) validateCapabilities(tree *model.ProcessTree) error {
	if e.Registry == nil {
		return nil
	}
	for id, step := range tree.Steps {
		if step.Type != model.StepAgent {
			continue
		}
		agentID, _ := step.Inputs["agent_id"].(string)
		if agentID == "" {
			continue
		}
		if _, err := e.Registry.Lookup(agentID); err != nil {
			return core.NewFrameworkError("process.Execute", core.KindAgentNotFound, core.ErrAgentNotFound).WithID(id)
		}
	}
	return nil
}

// runWave marks every step in wave ready, then runs it with bounded
// concurrency. Returns true if the wave's outcome requires aborting the
// whole plan (a step failed with on_failure=abort_plan, or ctx ended).
func (e *Executor) runWave(ctx context.Context, tree *model.ProcessTree, wave []string, sink *progress.Stream, maxParallel int) bool {
	for _, id := range wave {
		step := tree.Steps[id]
		step.Status = model.StatusReady
		sink.Publish(model.ProgressEvent{Type: model.EventStepReady, StepID: id})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	abort := make(chan struct{}, 1)
	signalAbort := func() {
		select {
		case abort <- struct{}{}:
		default:
		}
	}

	for _, id := range wave {
		id := id
		g.Go(func() error {
			step := tree.Steps[id]
			stepCtx, cancel := e.stepContext(gctx, step)
			defer cancel()

			sink.Publish(model.ProgressEvent{Type: model.EventStepStarted, StepID: id})
			step.Status = model.StatusRunning
			step.StartedAt = time.Now()

			result := e.runStepWithRetry(stepCtx, tree, step, sink)

			step.EndedAt = time.Now()
			step.Result = result
			if result.IsDegraded && step.Error != nil {
				step.Status = model.StatusFailed
				sink.Publish(model.ProgressEvent{
					Type:   model.EventStepFailed,
					StepID: id,
					Payload: map[string]interface{}{
						"error": step.Error.Error(),
						"kind":  core.KindOf(step.Error),
					},
				})
				if step.OnFailure == model.OnFailureAbortPlan {
					signalAbort()
				}
				return nil
			}

			step.Status = model.StatusCompleted
			sink.Publish(model.ProgressEvent{
				Type:   model.EventStepCompleted,
				StepID: id,
				Payload: map[string]interface{}{
					"duration_ms": step.EndedAt.Sub(step.StartedAt).Milliseconds(),
					"summary":     result.Summary,
				},
			})
			return nil
		})
	}

	_ = g.Wait()

	select {
	case <-abort:
		return true
	default:
	}
	return ctx.Err() != nil
}

func (e *Executor) stepContext(parent context.Context, step *model.ProcessStep) (context.Context, context.CancelFunc) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// runStepWithRetry wraps runStep with the step's retry policy, retrying
// only errors resilience/core classify as transient (spec §4.8e). The
// backoff schedule between attempts is driven by resilience.Retry (the
// same cenkalti/backoff/v5-backed helper the retrieval engine and the
// backend clients use), rather than hand-rolled delay math.
func (e *Executor) runStepWithRetry(ctx context.Context, tree *model.ProcessTree, step *model.ProcessStep, sink *progress.Stream) *model.StepResult {
	attempts := step.RetryPolicy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := step.RetryPolicy.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	config := &resilience.RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  baseDelay,
		MaxDelay:      baseDelay * time.Duration(uint(1)<<uint(attempts)),
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}

	var result *model.StepResult
	attempt := 0
	_ = resilience.Retry(ctx, config, func() error {
		attempt++
		if attempt > 1 {
			sink.Publish(model.ProgressEvent{
				Type:    model.EventStepProgress,
				StepID:  step.ID,
				Payload: map[string]interface{}{"attempt": attempt},
			})
		}

		result = e.runStep(ctx, tree, step)
		if !result.IsDegraded || step.Error == nil {
			return nil
		}
		if !core.IsRetryable(step.Error) {
			return backoff.Permanent(step.Error)
		}
		return step.Error
	})
	return result
}

// runStep dispatches a single step by type (spec §4.8c). It never
// returns a Go error: failures are recorded on step.Error and surfaced
// via StepResult.IsDegraded so the caller has one failure channel, not
// two.
func (e *Executor) runStep(ctx context.Context, tree *model.ProcessTree, step *model.ProcessStep) *model.StepResult {
	var result *model.StepResult
	var err error

	switch step.Type {
	case model.StepSearch, model.StepRetrieval:
		result, err = e.runSearchStep(ctx, step)
	case model.StepAgent:
		result, err = e.runAgentStep(ctx, step)
	case model.StepLLM:
		result, err = e.runLLMStep(ctx, tree, step)
	case model.StepQuality:
		result, err = e.runQualityStep(tree, step)
	case model.StepAggregate:
		result, err = e.runAggregateStep(tree, step)
	default:
		err = core.NewFrameworkError("process.runStep", core.KindValidation,
			fmt.Errorf("%w: unknown step type %q", core.ErrValidation, step.Type)).WithID(step.ID)
	}

	if err != nil {
		step.Error = err
		return &model.StepResult{IsDegraded: true, Summary: err.Error()}
	}
	step.Error = nil
	return result
}

func (e *Executor) runSearchStep(ctx context.Context, step *model.ProcessStep) (*model.StepResult, error) {
	if e.Retrieval == nil {
		return &model.StepResult{IsDegraded: true, Summary: "retrieval engine not configured"}, nil
	}

	req := retrieval.HybridRequest{Strategy: model.FusionRRF}
	if text, ok := step.Inputs["query_text"].(string); ok {
		req.QueryText = text
	}
	if topK, ok := step.Inputs["top_k"].(int); ok {
		req.TopK = topK
	}
	if len(step.FusionWeights) > 0 {
		req.Weights = make(map[model.SourceBackend]float64, len(step.FusionWeights))
		for k, v := range step.FusionWeights {
			req.Weights[model.SourceBackend(k)] = v
		}
	}
	if step.FusionStrategy != "" {
		req.Strategy = model.FusionStrategy(step.FusionStrategy)
	}

	hybrid := e.Retrieval.HybridSearch(ctx, req)
	return &model.StepResult{
		Value:   hybrid,
		Summary: fmt.Sprintf("%d documents retrieved", len(hybrid.Results)),
	}, nil
}

// runAgentStep dispatches to the Agent Registry, degrading gracefully
// (stub result, is_degraded=true, no citations) rather than failing the
// step when the agent or its backend is unavailable, per spec §4.8c.
func (e *Executor) runAgentStep(ctx context.Context, step *model.ProcessStep) (*model.StepResult, error) {
	if e.Registry == nil {
		return &model.StepResult{IsDegraded: true, Summary: "agent registry not configured"}, nil
	}
	agentID, _ := step.Inputs["agent_id"].(string)
	descriptor, err := e.Registry.Lookup(agentID)
	if err != nil {
		return nil, err
	}
	if descriptor.Execute == nil {
		return &model.StepResult{IsDegraded: true, Summary: "agent has no execute handle"}, nil
	}

	// An error here is a genuine step failure and flows through the
	// normal retry/on_failure pipeline. An agent that wants the
	// "graceful degradation" behaviour of spec §4.8c instead returns a
	// degraded StepResult with a nil error - that is a successful step
	// that merely reports incomplete work, not a failure.
	return descriptor.Execute(ctx, step)
}

// runLLMStep only ever runs on the root step's final LLM invocation, per
// spec §4.8c ("LLM -> Response Planner (only the root's final step)").
func (e *Executor) runLLMStep(ctx context.Context, tree *model.ProcessTree, step *model.ProcessStep) (*model.StepResult, error) {
	if e.LLM == nil {
		return &model.StepResult{IsDegraded: true, Summary: "response planner not configured"}, nil
	}
	return e.LLM.RunLLMStep(ctx, tree, step)
}

// runQualityStep performs local deterministic checks against the
// results of its dependencies: currently whether any upstream step
// degraded and whether the accumulated citation count is non-zero.
func (e *Executor) runQualityStep(tree *model.ProcessTree, step *model.ProcessStep) (*model.StepResult, error) {
	degraded := false
	citationCount := 0
	for _, depID := range step.DependsOn {
		dep := tree.Steps[depID]
		if dep == nil || dep.Result == nil {
			continue
		}
		if dep.Result.IsDegraded {
			degraded = true
		}
		citationCount += len(dep.Result.Citations)
	}
	return &model.StepResult{
		Value:      map[string]interface{}{"upstream_degraded": degraded, "citation_count": citationCount},
		IsDegraded: degraded,
		Summary:    fmt.Sprintf("quality check: %d citations, degraded=%v", citationCount, degraded),
	}, nil
}

// runAggregateStep is a pure combiner over its dependencies' results:
// concatenating citations and collecting each dependency's Value keyed
// by step id, for a downstream LLM step to consume as gathered context.
func (e *Executor) runAggregateStep(tree *model.ProcessTree, step *model.ProcessStep) (*model.StepResult, error) {
	values := make(map[string]interface{}, len(step.DependsOn))
	var citations []model.Citation
	anyDegraded := false

	for _, depID := range step.DependsOn {
		dep := tree.Steps[depID]
		if dep == nil || dep.Result == nil {
			continue
		}
		values[depID] = dep.Result.Value
		citations = append(citations, dep.Result.Citations...)
		if dep.Result.IsDegraded {
			anyDegraded = true
		}
	}

	return &model.StepResult{
		Value:      values,
		Citations:  citations,
		IsDegraded: anyDegraded,
		Summary:    fmt.Sprintf("aggregated %d upstream results", len(values)),
	}, nil
}
