package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/seantiz/relay/internal/model"
)

// ErrInvalidConfig is returned when a step config does not satisfy its kind's schema.
var ErrInvalidConfig = errors.New("invalid step config")

// Schema is a compiled JSON schema for a step kind's config map.
type Schema struct {
	schema *gojsonschema.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(src string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is CompileSchema that panics on error. Used for the
// built-in schemas.
func MustCompileSchema(src string) *Schema {
	s, err := CompileSchema(src)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks config against the schema. A nil config validates as an
// empty object.
func (s *Schema) Validate(config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Numeric config fields also accept strings so that they can carry
// {{variable}} templates resolved at run time.
var builtinSchemas = map[model.StepKind]string{
	model.KindAITask: `{
		"type": "object",
		"required": ["prompt"],
		"properties": {
			"prompt":        {"type": "string", "minLength": 1},
			"model_type":    {"type": "string"},
			"system_prompt": {"type": "string"},
			"max_tokens":    {"type": ["integer", "string"]},
			"temperature":   {"type": ["number", "string"]}
		}
	}`,
	model.KindHTTPRequest: `{
		"type": "object",
		"required": ["url"],
		"properties": {
			"url":     {"type": "string", "minLength": 1},
			"method":  {"type": "string", "pattern": "^(?i)(get|post|put|patch|delete)$"},
			"headers": {"type": "object"},
			"extract": {"type": "object", "additionalProperties": {"type": "string"}}
		}
	}`,
	model.KindDelay: `{
		"type": "object",
		"properties": {
			"delay_seconds": {"type": ["number", "string"], "minimum": 0}
		}
	}`,
	model.KindConditional: `{
		"type": "object",
		"required": ["condition"],
		"properties": {
			"condition": {"type": "string"}
		}
	}`,
}
