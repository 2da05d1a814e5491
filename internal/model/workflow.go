package model

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStepTimeoutS is applied to steps that do not declare a timeout.
const DefaultStepTimeoutS = 300

// DefaultRetryDelaySeconds fills delay_seconds when a decoded retry policy
// omits it. An explicit zero still retries immediately.
const DefaultRetryDelaySeconds = 1.0

// StepKind names the handler family that executes a step.
type StepKind string

// Step kinds. The first four have built-in handlers; the rest are declared
// extension points that report themselves as not yet supported until a real
// handler is registered for them.
const (
	KindAITask        StepKind = "ai_task"
	KindHTTPRequest   StepKind = "http_request"
	KindDelay         StepKind = "delay"
	KindConditional   StepKind = "conditional"
	KindDatabaseQuery StepKind = "database_query"
	KindEmailSend     StepKind = "email_send"
	KindFileProcess   StepKind = "file_process"
	KindLoop          StepKind = "loop"
	KindParallel      StepKind = "parallel"
	KindWebhook       StepKind = "webhook"
	KindCustomCode    StepKind = "custom_code"
	KindApproval      StepKind = "approval"
)

// BuiltinKinds lists the step kinds with a working built-in handler.
var BuiltinKinds = []StepKind{KindAITask, KindHTTPRequest, KindDelay, KindConditional}

// ExtensionKinds lists the declared step kinds that ship without an implementation.
var ExtensionKinds = []StepKind{
	KindDatabaseQuery,
	KindEmailSend,
	KindFileProcess,
	KindLoop,
	KindParallel,
	KindWebhook,
	KindCustomCode,
	KindApproval,
}

// WorkflowVariable is a named, dynamically typed value scoped to one execution.
type WorkflowVariable struct {
	Name        string `json:"name" yaml:"name"`
	Value       any    `json:"value" yaml:"value"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Encrypted   bool   `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// Condition is a boolean expression over execution variables.
type Condition struct {
	Expression string `json:"expression" yaml:"expression"`
}

// RetryPolicy controls how many times a failed step is re-invoked and how long
// to wait between attempts. The wait grows linearly: DelaySeconds * attempt.
type RetryPolicy struct {
	MaxRetries   int     `json:"max_retries" yaml:"max_retries"`
	DelaySeconds float64 `json:"delay_seconds" yaml:"delay_seconds"`
}

type retryPolicyFields RetryPolicy

// UnmarshalJSON decodes a retry policy, defaulting an absent delay_seconds.
func (p *RetryPolicy) UnmarshalJSON(data []byte) error {
	fields := retryPolicyFields{DelaySeconds: DefaultRetryDelaySeconds}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*p = RetryPolicy(fields)
	return nil
}

// UnmarshalYAML decodes a retry policy, defaulting an absent delay_seconds.
func (p *RetryPolicy) UnmarshalYAML(value *yaml.Node) error {
	fields := retryPolicyFields{DelaySeconds: DefaultRetryDelaySeconds}
	if err := value.Decode(&fields); err != nil {
		return err
	}
	*p = RetryPolicy(fields)
	return nil
}

// Delay returns the backoff before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if p.DelaySeconds <= 0 || retry <= 0 {
		return 0
	}
	return time.Duration(p.DelaySeconds * float64(retry) * float64(time.Second))
}

// StepConfiguration declares one step of a workflow.
type StepConfiguration struct {
	ID                string            `json:"id" yaml:"id"`
	Kind              StepKind          `json:"kind" yaml:"kind"`
	Name              string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	Config            map[string]any    `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs            map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs           map[string]string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Conditions        []Condition       `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	RetryPolicy       RetryPolicy       `json:"retry_policy" yaml:"retry_policy"`
	TimeoutSeconds    int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	DependsOn         []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ContinueOnFailure bool              `json:"continue_on_failure,omitempty" yaml:"continue_on_failure,omitempty"`
}

// Timeout returns the step deadline, falling back to DefaultStepTimeoutS.
func (s StepConfiguration) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return DefaultStepTimeoutS * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Clone returns a deep copy of the step configuration.
func (s StepConfiguration) Clone() StepConfiguration {
	clone := s
	clone.Config = CloneMap(s.Config)
	clone.Inputs = cloneStringMap(s.Inputs)
	clone.Outputs = cloneStringMap(s.Outputs)
	if len(s.Conditions) > 0 {
		clone.Conditions = append([]Condition(nil), s.Conditions...)
	}
	if len(s.DependsOn) > 0 {
		clone.DependsOn = append([]string(nil), s.DependsOn...)
	}
	return clone
}

// WorkflowDefinition is an immutable template of steps and default variables.
type WorkflowDefinition struct {
	ID          string                      `json:"id" yaml:"id"`
	Name        string                      `json:"name" yaml:"name"`
	Description string                      `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string                      `json:"version" yaml:"version"`
	Steps       []StepConfiguration         `json:"steps" yaml:"steps"`
	Variables   map[string]WorkflowVariable `json:"variables,omitempty" yaml:"variables,omitempty"`
	Tags        []string                    `json:"tags,omitempty" yaml:"tags,omitempty"`
	CreatedBy   string                      `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt   time.Time                   `json:"created_at" yaml:"-"`
}

// Clone returns a deep copy of the workflow definition.
func (d WorkflowDefinition) Clone() WorkflowDefinition {
	clone := d
	if len(d.Steps) > 0 {
		clone.Steps = make([]StepConfiguration, len(d.Steps))
		for i, s := range d.Steps {
			clone.Steps[i] = s.Clone()
		}
	}
	if len(d.Variables) > 0 {
		clone.Variables = make(map[string]WorkflowVariable, len(d.Variables))
		for k, v := range d.Variables {
			clone.Variables[k] = v
		}
	}
	if len(d.Tags) > 0 {
		clone.Tags = append([]string(nil), d.Tags...)
	}
	return clone
}

// Step looks up a step by id.
func (d WorkflowDefinition) Step(id string) (StepConfiguration, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepConfiguration{}, false
}

// CloneMap returns a deep copy of a JSON-like map. Nested maps and slices are
// copied; other values are shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
