// Package condition evaluates boolean step guards over execution variables.
package condition

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// Evaluate compiles and runs expression against vars. An empty expression is
// true. Variables missing from vars evaluate to nil rather than failing
// compilation.
func Evaluate(expression string, vars map[string]any) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return true, nil
	}
	if vars == nil {
		vars = map[string]any{}
	}

	program, err := expr.Compile(expression, expr.Env(vars), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	output, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", expression, err)
	}
	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", expression, output)
	}
	return result, nil
}

// All reports whether every expression holds. Evaluation stops at the first
// false or failing expression; that expression is returned alongside the
// error so callers can log it.
func All(expressions []string, vars map[string]any) (bool, string, error) {
	for _, e := range expressions {
		ok, err := Evaluate(e, vars)
		if err != nil {
			return false, e, err
		}
		if !ok {
			return false, e, nil
		}
	}
	return true, "", nil
}
