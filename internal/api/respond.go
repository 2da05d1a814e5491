package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/graph"
	"github.com/seantiz/relay/internal/handler"
	"github.com/seantiz/relay/internal/loader"
	"github.com/seantiz/relay/internal/model"
	"github.com/seantiz/relay/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps engine and validation errors to HTTP statuses.
// Anything unrecognised is logged and reported as a 500.
func (s *Server) writeEngineError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, engine.ErrWorkflowNotFound),
		errors.Is(err, engine.ErrExecutionNotFound),
		errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrPermissionDenied):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, graph.ErrInvalidDefinition),
		errors.Is(err, graph.ErrUnknownDependency),
		errors.Is(err, graph.ErrCyclicDependency),
		errors.Is(err, handler.ErrInvalidConfig),
		errors.Is(err, loader.ErrEmptyDefinition):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrEngineStopped):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error(action, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// caller identifies the requester from X-Caller-Id. A matching X-Admin-Token
// grants administrative rights.
func (s *Server) caller(r *http.Request) model.Caller {
	c := model.Caller{ID: r.Header.Get(headerCallerID)}
	if s.adminToken != "" {
		token := r.Header.Get(headerAdminToken)
		c.Admin = subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1
	}
	return c
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// pageParams reads limit and offset, clamping them to sane bounds.
func pageParams(r *http.Request) (limit, offset int) {
	limit = parseIntQuery(r, "limit", defaultListLimit)
	offset = parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
