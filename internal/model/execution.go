package model

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

// Execution status constants.
const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// StepStatus is the lifecycle state of one step within an execution.
type StepStatus string

// Step status constants.
const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepRetrying  StepStatus = "retrying"
)

// validExecutionTransitions maps each execution status to the statuses it may
// move to. Terminal statuses have no entry.
var validExecutionTransitions = map[ExecutionStatus]map[ExecutionStatus]bool{
	ExecutionPending: {
		ExecutionRunning: true,
		ExecutionFailed:  true,
	},
	ExecutionRunning: {
		ExecutionCompleted: true,
		ExecutionFailed:    true,
		ExecutionCancelled: true,
	},
}

// validStepTransitions maps each step status to the statuses it may move to.
var validStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending: {
		StepRunning: true,
	},
	StepRunning: {
		StepCompleted: true,
		StepFailed:    true,
		StepSkipped:   true,
		StepRetrying:  true,
	},
	StepRetrying: {
		StepRunning: true,
		StepFailed:  true,
	},
}

// ValidTransition reports whether an execution may move from one status to another.
func ValidTransition(from, to ExecutionStatus) bool {
	return validExecutionTransitions[from][to]
}

// ValidStepTransition reports whether a step may move from one status to another.
func ValidStepTransition(from, to StepStatus) bool {
	return validStepTransitions[from][to]
}

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Terminal reports whether the step has settled. A failed step counts as
// terminal for readiness purposes; whether it halts the execution is decided
// by the scheduler.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepSkipped
}

// StepExecution tracks one step within one execution.
type StepExecution struct {
	StepID       string     `json:"step_id"`
	ExecutionID  string     `json:"execution_id"`
	Status       StepStatus `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Result       any        `json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	Attempts     int        `json:"attempts"`
	DurationMS   int64      `json:"duration_ms,omitempty"`
}

// WorkflowExecution is one run of a workflow definition.
type WorkflowExecution struct {
	ID             string                      `json:"execution_id"`
	WorkflowID     string                      `json:"workflow_id"`
	InvokerID      string                      `json:"invoker_id"`
	Status         ExecutionStatus             `json:"status"`
	StartedAt      time.Time                   `json:"started_at"`
	CompletedAt    *time.Time                  `json:"completed_at,omitempty"`
	Progress       float64                     `json:"progress"`
	ErrorMessage   string                      `json:"error_message,omitempty"`
	Variables      map[string]WorkflowVariable `json:"variables"`
	StepExecutions map[string]*StepExecution   `json:"step_executions"`
	Metadata       map[string]any              `json:"metadata,omitempty"`
}

// Clone returns a deep copy suitable for handing to readers outside the
// goroutines that own the execution.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	clone := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		clone.CompletedAt = &t
	}
	clone.Metadata = CloneMap(e.Metadata)
	if e.Variables != nil {
		clone.Variables = make(map[string]WorkflowVariable, len(e.Variables))
		for k, v := range e.Variables {
			v.Value = cloneValue(v.Value)
			clone.Variables[k] = v
		}
	}
	if e.StepExecutions != nil {
		clone.StepExecutions = make(map[string]*StepExecution, len(e.StepExecutions))
		for id, se := range e.StepExecutions {
			c := *se
			c.Result = cloneValue(se.Result)
			clone.StepExecutions[id] = &c
		}
	}
	return &clone
}

// StepStatuses returns the current status of each step keyed by step id.
func (e *WorkflowExecution) StepStatuses() map[string]StepStatus {
	out := make(map[string]StepStatus, len(e.StepExecutions))
	for id, se := range e.StepExecutions {
		out[id] = se.Status
	}
	return out
}

// Redacted returns a copy with encrypted variable values masked.
func (e *WorkflowExecution) Redacted() *WorkflowExecution {
	clone := e.Clone()
	for k, v := range clone.Variables {
		if v.Encrypted {
			v.Value = RedactedValue
			clone.Variables[k] = v
		}
	}
	return clone
}

// RedactedValue replaces encrypted variable values in logs and API responses.
const RedactedValue = "[redacted]"

// Caller identifies who is acting on an execution.
type Caller struct {
	ID    string
	Admin bool
}

// CanControl reports whether the caller may cancel an execution started by invokerID.
func (c Caller) CanControl(invokerID string) bool {
	return c.Admin || (c.ID != "" && c.ID == invokerID)
}
