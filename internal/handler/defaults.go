package handler

import (
	"net/http"

	"github.com/seantiz/relay/internal/model"
)

// Options configures the built-in handlers.
type Options struct {
	// HTTPClient is used by http_request steps. Nil means http.DefaultClient.
	HTTPClient *http.Client
	// Inferer backs ai_task steps. Nil makes ai_task steps fail.
	Inferer Inferer
}

// NewDefaultRegistry returns a registry with the built-in handlers and their
// config schemas, plus "not implemented" placeholders for every declared
// extension kind.
func NewDefaultRegistry(opts Options) *Registry {
	r := NewRegistry()

	r.Register(model.KindAITask, NewAI(opts.Inferer))
	r.Register(model.KindHTTPRequest, NewHTTP(opts.HTTPClient))
	r.Register(model.KindDelay, Func(Delay))
	r.Register(model.KindConditional, Func(Conditional))

	for _, kind := range model.ExtensionKinds {
		r.Register(kind, NotImplemented(kind))
	}
	for kind, src := range builtinSchemas {
		r.RegisterSchema(kind, MustCompileSchema(src))
	}
	return r
}
