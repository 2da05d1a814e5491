package model

import "time"

// EventKind identifies a lifecycle notification.
type EventKind string

// Event kinds published by the engine.
const (
	EventExecutionStarted   EventKind = "execution.started"
	EventExecutionCompleted EventKind = "execution.completed"
	EventExecutionFailed    EventKind = "execution.failed"
	EventExecutionCancelled EventKind = "execution.cancelled"
	EventStepCompleted      EventKind = "step.completed"
)

// Event is a lifecycle notification for an execution or one of its steps.
// StepID is empty for execution-level events.
type Event struct {
	ID          string    `json:"id"`
	Kind        EventKind `json:"kind"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	InvokerID   string    `json:"invoker_id,omitempty"`
	StepID      string    `json:"step_id,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Progress    float64   `json:"progress"`
	Timestamp   time.Time `json:"timestamp"`
}

// Terminal reports whether the event closes the execution's event stream.
func (e Event) Terminal() bool {
	switch e.Kind {
	case EventExecutionCompleted, EventExecutionFailed, EventExecutionCancelled:
		return true
	}
	return false
}
