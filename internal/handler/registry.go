package handler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seantiz/relay/internal/model"
)

// KindInfo describes a registered step kind.
type KindInfo struct {
	Kind        model.StepKind `json:"kind"`
	Implemented bool           `json:"implemented"`
	HasSchema   bool           `json:"has_schema"`
}

// Registry holds the handler bound to each step kind and the optional JSON
// schema each kind's config must satisfy.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.StepKind]Handler
	schemas  map[model.StepKind]*Schema
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[model.StepKind]Handler),
		schemas:  make(map[model.StepKind]*Schema),
	}
}

// Register binds a handler to a step kind, replacing any previous binding.
func (r *Registry) Register(kind model.StepKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// RegisterSchema attaches a config schema to a step kind.
func (r *Registry) RegisterSchema(kind model.StepKind, s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[kind] = s
}

// Resolve returns the handler for kind, or an error wrapping
// ErrUnsupportedStepType when none is registered.
func (r *Registry) Resolve(kind model.StepKind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %q", ErrUnsupportedStepType, kind)
	}
	return h, nil
}

// ValidateStep checks a step's config against its kind's schema, if any.
func (r *Registry) ValidateStep(step model.StepConfiguration) error {
	r.mu.RLock()
	s, ok := r.schemas[step.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := s.Validate(step.Config); err != nil {
		return fmt.Errorf("step %s config: %w", step.ID, err)
	}
	return nil
}

// List returns every registered kind sorted by name for a stable API response.
func (r *Registry) List() []KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]KindInfo, 0, len(r.handlers))
	for kind, h := range r.handlers {
		_, placeholder := h.(unsupported)
		_, hasSchema := r.schemas[kind]
		infos = append(infos, KindInfo{
			Kind:        kind,
			Implemented: !placeholder,
			HasSchema:   hasSchema,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}
