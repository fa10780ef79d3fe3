package process

import (
	"context"
	"testing"
	"time"

	"github.com/jurisoracle/vrag/core"
	"github.com/jurisoracle/vrag/model"
	"github.com/jurisoracle/vrag/progress"
	"github.com/jurisoracle/vrag/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub <-chan model.ProgressEvent) []model.ProgressEvent {
	var out []model.ProgressEvent
	for e := range sub {
		out = append(out, e)
	}
	return out
}

func eventTypes(events []model.ProgressEvent) []model.EventType {
	out := make([]model.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestExecute_CycleFailsBeforeAnyStepRuns(t *testing.T) {
	tr := tree(step("a", "b"), step("b", "a"))
	tr.RootID = "a"
	e := New(nil, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	result := e.Execute(context.Background(), tr, sink)

	events := drain(sub)
	require.True(t, result.IsDegraded)
	assert.Equal(t, []model.EventType{model.EventPlanStarted, model.EventPlanFailed}, eventTypes(events))
}

func TestExecute_AggregateRootCombinesDependencyResults(t *testing.T) {
	tr := tree(
		step("a"),
		step("b"),
		&model.ProcessStep{ID: "root", Type: model.StepAggregate, DependsOn: []string{"a", "b"}},
	)
	tr.RootID = "root"
	// default StepType for "a"/"b" is the zero value; give them an
	// AGGREGATE type too so runStep has a defined, trivial path.
	tr.Steps["a"].Type = model.StepAggregate
	tr.Steps["b"].Type = model.StepAggregate

	e := New(nil, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	result := e.Execute(context.Background(), tr, sink)

	events := drain(sub)
	require.False(t, result.IsDegraded)
	assert.Contains(t, eventTypes(events), model.EventPlanCompleted)
	assert.Contains(t, eventTypes(events), model.EventStepCompleted)
}

func TestExecute_MissingAgentFailsPlanBeforeRunning(t *testing.T) {
	reg := registry.New()
	tr := tree(&model.ProcessStep{
		ID:   "a",
		Type: model.StepAgent,
		Inputs: map[string]interface{}{"agent_id": "ghost"},
	})
	tr.RootID = "a"

	e := New(reg, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	result := e.Execute(context.Background(), tr, sink)
	events := drain(sub)

	require.True(t, result.IsDegraded)
	assert.Contains(t, eventTypes(events), model.EventPlanFailed)
}

func TestExecute_AgentDegradesGracefullyWhenUnavailable(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.Descriptor{
		ID: "muni-lookup",
		Execute: func(ctx context.Context, step *model.ProcessStep) (*model.StepResult, error) {
			return &model.StepResult{IsDegraded: true, Summary: "backend down"}, nil
		},
	}))

	tr := tree(&model.ProcessStep{
		ID:        "lookup",
		Type:      model.StepAgent,
		Inputs:    map[string]interface{}{"agent_id": "muni-lookup"},
		OnFailure: model.OnFailureContinue,
	})
	tr.RootID = "lookup"

	e := New(reg, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	result := e.Execute(context.Background(), tr, sink)
	events := drain(sub)

	assert.True(t, result.IsDegraded)
	assert.Contains(t, eventTypes(events), model.EventPlanCompleted)
}

func TestExecute_AbortPlanPolicyStopsAfterFailingWave(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(registry.Descriptor{
		ID: "flaky",
		Execute: func(ctx context.Context, step *model.ProcessStep) (*model.StepResult, error) {
			return nil, core.NewFrameworkError("test", core.KindValidation, core.ErrValidation)
		},
	}))

	failing := &model.ProcessStep{
		ID:        "a",
		Type:      model.StepAgent,
		Inputs:    map[string]interface{}{"agent_id": "flaky"},
		OnFailure: model.OnFailureAbortPlan,
	}
	downstream := &model.ProcessStep{ID: "b", Type: model.StepAggregate, DependsOn: []string{"a"}}
	tr := tree(failing, downstream)
	tr.RootID = "b"

	e := New(reg, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	result := e.Execute(context.Background(), tr, sink)
	events := drain(sub)

	assert.True(t, result.IsDegraded)
	assert.Contains(t, eventTypes(events), model.EventPlanFailed)
	assert.NotContains(t, eventTypes(events), model.EventPlanCompleted)
}

func TestExecute_CancellationStopsBeforeFurtherWaves(t *testing.T) {
	tr := tree(step("a"), step("b", "a"))
	tr.RootID = "b"
	e := New(nil, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Execute(ctx, tr, sink)
	events := drain(sub)

	assert.True(t, result.IsDegraded)
	assert.Contains(t, eventTypes(events), model.EventPlanCancelled)
}

func TestExecute_RetryPolicyEventuallySucceeds(t *testing.T) {
	reg := registry.New()
	attempts := 0
	require.NoError(t, reg.Register(registry.Descriptor{
		ID: "eventually-ok",
		Execute: func(ctx context.Context, step *model.ProcessStep) (*model.StepResult, error) {
			attempts++
			if attempts < 2 {
				return nil, core.NewFrameworkError("test", core.KindBackendDown, core.ErrBackendUnavailable)
			}
			return &model.StepResult{Summary: "ok"}, nil
		},
	}))

	tr := tree(&model.ProcessStep{
		ID:          "a",
		Type:        model.StepAgent,
		Inputs:      map[string]interface{}{"agent_id": "eventually-ok"},
		RetryPolicy: model.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
	tr.RootID = "a"

	e := New(reg, nil, nil, nil, nil)
	sink := progress.New()
	sub := sink.Subscribe()

	result := e.Execute(context.Background(), tr, sink)
	drain(sub)

	require.False(t, result.IsDegraded)
	assert.Equal(t, 2, attempts)
}
