package handler

import (
	"context"

	"github.com/seantiz/relay/internal/condition"
)

// Conditional evaluates config.condition against the execution variables and
// reports the outcome as condition_result.
func Conditional(_ context.Context, req Request) (map[string]any, error) {
	ok, err := condition.Evaluate(req.ConfigString("condition", ""), req.Variables)
	if err != nil {
		return nil, err
	}
	return map[string]any{"condition_result": ok}, nil
}
