package model

import "time"

// EventType enumerates the progress events a process tree emits. The
// sequence is always terminated by exactly one of the plan_* terminal
// types.
type EventType string

const (
	EventPlanStarted   EventType = "plan_started"
	EventStepReady     EventType = "step_ready"
	EventStepStarted   EventType = "step_started"
	EventStepProgress  EventType = "step_progress"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventPlanCompleted EventType = "plan_completed"
	EventPlanFailed    EventType = "plan_failed"
	EventPlanCancelled EventType = "plan_cancelled"
)

// Terminal reports whether this event type ends the stream.
func (t EventType) Terminal() bool {
	switch t {
	case EventPlanCompleted, EventPlanFailed, EventPlanCancelled:
		return true
	default:
		return false
	}
}

// ProgressEvent is one entry in a tree's ordered event stream. Sequence
// is assigned by the Process Executor and is strictly increasing and
// gap-free within a tree; it is the canonical order, not Timestamp.
type ProgressEvent struct {
	Sequence  int64                  `json:"seq"`
	Type      EventType              `json:"type"`
	StepID    string                 `json:"step_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
