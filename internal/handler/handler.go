// Package handler defines the contract between the execution engine and the
// pluggable units of work bound to step kinds, the registry that maps kinds to
// handlers, and the built-in handlers.
package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/seantiz/relay/internal/model"
)

// ErrUnsupportedStepType is returned when no usable handler exists for a step
// kind. The engine treats it as fatal for the step: it is never retried.
var ErrUnsupportedStepType = errors.New("unsupported step type")

// Handler runs one step. The context carries the step deadline. Handlers are
// re-invoked from scratch on retry, so handlers with non-idempotent side
// effects must guard against duplicates themselves.
type Handler interface {
	Handle(ctx context.Context, req Request) (map[string]any, error)
}

// Func adapts an ordinary function to the Handler interface.
type Func func(ctx context.Context, req Request) (map[string]any, error)

// Handle calls f(ctx, req).
func (f Func) Handle(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// Request is what a handler sees of the step it runs. Step.Config has had its
// templates resolved against the execution variables.
type Request struct {
	ExecutionID string
	WorkflowID  string
	InvokerID   string
	Attempt     int

	Step model.StepConfiguration

	// Inputs holds the step's input fields resolved to values.
	Inputs map[string]any

	// Variables is a snapshot of the execution variables at dispatch time.
	Variables map[string]any
}

// ConfigString returns a config value as a string or def when absent. A whole
// "{{name}}" template resolves to the variable's typed value, so boolean and
// numeric scalars are formatted rather than dropped.
func (r Request) ConfigString(key, def string) string {
	switch v := r.Step.Config[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case bool:
		return strconv.FormatBool(v)
	default:
		if n, ok := toFloat(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return def
}

// ConfigFloat returns a numeric config value.
func (r Request) ConfigFloat(key string) (float64, bool) {
	return toFloat(r.Step.Config[key])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
