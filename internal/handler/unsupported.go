package handler

import (
	"context"
	"fmt"

	"github.com/seantiz/relay/internal/model"
)

// unsupported is the placeholder bound to declared step kinds that have no
// implementation yet. Registering a real handler for the kind replaces it.
type unsupported struct {
	kind model.StepKind
}

// NotImplemented returns the placeholder handler for kind.
func NotImplemented(kind model.StepKind) Handler {
	return unsupported{kind: kind}
}

func (u unsupported) Handle(context.Context, Request) (map[string]any, error) {
	return nil, fmt.Errorf("%w: %s handler not implemented", ErrUnsupportedStepType, u.kind)
}
