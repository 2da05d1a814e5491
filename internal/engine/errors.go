package engine

import "errors"

var (
	// ErrWorkflowNotFound is returned when an execution is requested for an
	// unregistered workflow id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound is returned for unknown or evicted execution ids.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrPermissionDenied is returned when a caller other than the invoker
	// tries to cancel an execution without administrative capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStepTimeout marks a handler invocation that outlived the step deadline.
	ErrStepTimeout = errors.New("step timeout")

	// ErrStepExecution wraps an error returned by a step handler.
	ErrStepExecution = errors.New("step execution error")

	// ErrEngineStopped is returned by StartExecution after Stop.
	ErrEngineStopped = errors.New("engine stopped")
)
