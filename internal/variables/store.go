// Package variables holds the per-execution variable bag, template
// substitution and output binding.
package variables

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/seantiz/relay/internal/model"
)

// templateRef matches {{name}} references. Names are word characters only.
var templateRef = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Store is the variable bag owned by one execution. It is safe for concurrent
// use by the step goroutines of that execution.
type Store struct {
	mu   sync.RWMutex
	vars map[string]model.WorkflowVariable
}

// New seeds a store from definition defaults, overriding values with the
// caller-supplied initial variables. Overrides for names without a default
// create new variables.
func New(defaults map[string]model.WorkflowVariable, overrides map[string]any) *Store {
	s := &Store{vars: make(map[string]model.WorkflowVariable, len(defaults)+len(overrides))}
	for name, v := range defaults {
		v.Name = name
		s.vars[name] = v
	}
	for name, value := range overrides {
		v, ok := s.vars[name]
		if !ok {
			v = model.WorkflowVariable{Name: name, Type: typeName(value)}
		}
		v.Value = value
		s.vars[name] = v
	}
	return s
}

// Get returns the value of a variable.
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v.Value, ok
}

// Set overwrites a variable's value, creating the variable if needed. The
// declared type and encrypted flag of an existing variable are kept.
func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		v = model.WorkflowVariable{Name: name, Type: typeName(value)}
	}
	v.Value = value
	s.vars[name] = v
}

// Values returns a name -> value map for expression evaluation.
func (s *Store) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.vars))
	for name, v := range s.vars {
		out[name] = v.Value
	}
	return out
}

// Snapshot returns a copy of every variable.
func (s *Store) Snapshot() map[string]model.WorkflowVariable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.WorkflowVariable, len(s.vars))
	for name, v := range s.vars {
		out[name] = v
	}
	return out
}

// Names returns the variable names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve substitutes every {{name}} in tmpl with the string form of the
// variable. References to unknown variables are left verbatim.
func (s *Store) Resolve(tmpl string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(tmpl)
}

func (s *Store) resolveLocked(tmpl string) string {
	return templateRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		name := templateRef.FindStringSubmatch(ref)[1]
		v, ok := s.vars[name]
		if !ok {
			return ref
		}
		return fmt.Sprint(v.Value)
	})
}

// ResolveValue walks a JSON-like value and resolves templates in every string.
// A string that is exactly one reference to a known variable resolves to the
// variable's value with its type intact.
func (s *Store) ResolveValue(value any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveValueLocked(value)
}

func (s *Store) resolveValueLocked(value any) any {
	switch t := value.(type) {
	case string:
		if m := templateRef.FindStringSubmatch(t); m != nil && m[0] == t {
			if v, ok := s.vars[m[1]]; ok {
				return v.Value
			}
			return t
		}
		return s.resolveLocked(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = s.resolveValueLocked(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = s.resolveValueLocked(v)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = s.resolveValueLocked(v)
		}
		return out
	default:
		return value
	}
}

// ResolveInputs maps handler-local field names to values. Each input names a
// variable directly or holds a template; a bare name that is not a known
// variable is resolved as a template.
func (s *Store) ResolveInputs(inputs map[string]string) map[string]any {
	if len(inputs) == 0 {
		return map[string]any{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(inputs))
	for field, ref := range inputs {
		if v, ok := s.vars[ref]; ok {
			out[field] = v.Value
			continue
		}
		out[field] = s.resolveValueLocked(ref)
	}
	return out
}

// Bind copies handler result fields into variables. For each field -> variable
// pair, a field present in result overwrites (or creates) the variable.
func (s *Store) Bind(outputs map[string]string, result map[string]any) {
	if len(outputs) == 0 || result == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for field, name := range outputs {
		value, ok := result[field]
		if !ok {
			continue
		}
		v, exists := s.vars[name]
		if !exists {
			v = model.WorkflowVariable{Name: name, Type: typeName(value)}
		}
		v.Value = value
		s.vars[name] = v
	}
}

// typeName reports a coarse type tag for variables created at run time.
func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}
