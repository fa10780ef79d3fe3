package model

import "time"

// StepType dispatches a ProcessStep to the subsystem that executes it.
type StepType string

const (
	StepNLP       StepType = "NLP"
	StepSearch    StepType = "SEARCH"
	StepRetrieval StepType = "RETRIEVAL"
	StepAgent     StepType = "AGENT"
	StepLLM       StepType = "LLM"
	StepQuality   StepType = "QUALITY"
	StepAggregate StepType = "AGGREGATE"
)

// StepStatus is the lifecycle state of a ProcessStep. Only the process
// executor mutates it.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusReady     StepStatus = "ready"
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
	StatusCancelled StepStatus = "cancelled"
	StatusSkipped   StepStatus = "skipped"
)

// OnFailurePolicy controls whether a step's failure aborts the whole
// plan or is absorbed as a degraded result.
type OnFailurePolicy string

const (
	OnFailureContinue   OnFailurePolicy = "continue"
	OnFailureAbortPlan  OnFailurePolicy = "abort_plan"
)

// RetryPolicy bounds how many times a step may be retried and whether
// retries are permitted at all; the executor still refuses to retry
// errors it classifies as permanent regardless of this policy.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
}

// StepResult is the immutable outcome of one step execution.
type StepResult struct {
	Value      interface{} `json:"value,omitempty"`
	Citations  []Citation  `json:"citations,omitempty"`
	IsDegraded bool        `json:"is_degraded"`
	Summary    string      `json:"summary,omitempty"`
}

// ProcessStep is one node of a ProcessTree. Inputs and DependsOn are set
// at build time and never change; everything else is owned and mutated
// exclusively by the Process Executor while the tree runs.
type ProcessStep struct {
	ID          string          `json:"id"`
	Type        StepType        `json:"step_type"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	DependsOn   []string        `json:"depends_on,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
	RetryPolicy RetryPolicy     `json:"retry_policy"`
	OnFailure   OnFailurePolicy `json:"on_failure,omitempty"`

	Status    StepStatus  `json:"status"`
	StartedAt time.Time   `json:"started_at,omitempty"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	Result    *StepResult `json:"result,omitempty"`
	Error     error       `json:"-"`
	Citations []Citation  `json:"citations,omitempty"`

	// Weights/strategy overrides for SEARCH/RETRIEVAL steps (§4.8c).
	FusionWeights  map[string]float64 `json:"fusion_weights,omitempty"`
	FusionStrategy string             `json:"fusion_strategy,omitempty"`
}

// ProcessTree is a rooted DAG of ProcessSteps. The root step carries the
// originating Query and, at the end of execution, the aggregated final
// result. Children may have more than one parent (depends_on fan-in).
type ProcessTree struct {
	ID       string                  `json:"id"`
	Query    Query                   `json:"query"`
	RootID   string                  `json:"root_id"`
	Steps    map[string]*ProcessStep `json:"steps"`
}

// Step looks up a step by id, returning nil if it doesn't exist.
func (t *ProcessTree) Step(id string) *ProcessStep {
	if t == nil {
		return nil
	}
	return t.Steps[id]
}

// Root returns the tree's root step.
func (t *ProcessTree) Root() *ProcessStep {
	return t.Step(t.RootID)
}
