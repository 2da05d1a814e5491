// Package graph validates the step dependency graph of a workflow definition
// and computes which steps are ready to run.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/relay/internal/model"
)

// Validation error sentinels. ValidationError unwraps to one of these.
var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrCyclicDependency  = errors.New("cyclic dependency")
)

// ValidationError describes why a definition was rejected.
type ValidationError struct {
	Kind   error
	StepID string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%v: step %s: %s", e.Kind, e.StepID, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Validate checks that a definition is structurally sound: it has an id and at
// least one step, step ids are unique and non-empty, every dependency names a
// step in the same definition, and the dependency relation is acyclic.
func Validate(def model.WorkflowDefinition) error {
	if def.ID == "" {
		return &ValidationError{Kind: ErrInvalidDefinition, Detail: "workflow id is required"}
	}
	if len(def.Steps) == 0 {
		return &ValidationError{Kind: ErrInvalidDefinition, Detail: "at least one step is required"}
	}
	ids := make(map[string]struct{}, len(def.Steps))
	for i, step := range def.Steps {
		if step.ID == "" {
			return &ValidationError{Kind: ErrInvalidDefinition, Detail: fmt.Sprintf("steps[%d]: id is required", i)}
		}
		if _, dup := ids[step.ID]; dup {
			return &ValidationError{Kind: ErrInvalidDefinition, StepID: step.ID, Detail: "duplicate step id"}
		}
		if step.Kind == "" {
			return &ValidationError{Kind: ErrInvalidDefinition, StepID: step.ID, Detail: "kind is required"}
		}
		if step.TimeoutSeconds < 0 {
			return &ValidationError{Kind: ErrInvalidDefinition, StepID: step.ID, Detail: "timeout_seconds must be positive"}
		}
		if step.RetryPolicy.MaxRetries < 0 || step.RetryPolicy.DelaySeconds < 0 {
			return &ValidationError{Kind: ErrInvalidDefinition, StepID: step.ID, Detail: "retry policy values must be >= 0"}
		}
		ids[step.ID] = struct{}{}
	}
	for _, step := range def.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := ids[dep]; !ok {
				return &ValidationError{Kind: ErrUnknownDependency, StepID: step.ID, Detail: fmt.Sprintf("depends on undeclared step %s", dep)}
			}
		}
	}
	return DetectCycle(def)
}

// DetectCycle runs a depth-first search over the dependency relation and
// returns a CyclicDependency ValidationError naming the cycle, if any.
// Dependencies on unknown steps are ignored here.
func DetectCycle(def model.WorkflowDefinition) error {
	deps := make(map[string][]string, len(def.Steps))
	for _, step := range def.Steps {
		deps[step.ID] = step.DependsOn
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(deps))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = onStack
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if _, known := deps[dep]; !known {
				continue
			}
			switch state[dep] {
			case onStack:
				for i, s := range stack {
					if s == dep {
						return append(append([]string(nil), stack[i:]...), dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, step := range def.Steps {
		if state[step.ID] != unvisited {
			continue
		}
		if cycle := visit(step.ID); cycle != nil {
			return &ValidationError{
				Kind:   ErrCyclicDependency,
				StepID: cycle[0],
				Detail: strings.Join(cycle, " -> "),
			}
		}
	}
	return nil
}

// ReadyFrontier returns, in declaration order, every step that is still
// pending and whose dependencies have all reached a terminal status.
func ReadyFrontier(def model.WorkflowDefinition, statuses map[string]model.StepStatus) []string {
	var ready []string
	for _, step := range def.Steps {
		if statuses[step.ID] != model.StepPending {
			continue
		}
		if dependenciesSettled(step, statuses) {
			ready = append(ready, step.ID)
		}
	}
	return ready
}

// AllTerminal reports whether every step in the definition has settled.
func AllTerminal(def model.WorkflowDefinition, statuses map[string]model.StepStatus) bool {
	for _, step := range def.Steps {
		if !statuses[step.ID].Terminal() {
			return false
		}
	}
	return true
}

func dependenciesSettled(step model.StepConfiguration, statuses map[string]model.StepStatus) bool {
	for _, dep := range step.DependsOn {
		status, ok := statuses[dep]
		if !ok || !status.Terminal() {
			return false
		}
	}
	return true
}
