package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/relay/internal/loader"
	"github.com/seantiz/relay/internal/model"
)

// registerWorkflowResponse is the JSON response for POST /v1/workflows.
type registerWorkflowResponse struct {
	ID string `json:"id"`
}

// startExecutionRequest is the JSON body for POST /v1/workflows/{id}/executions.
type startExecutionRequest struct {
	InvokerID string         `json:"invoker_id"`
	Variables map[string]any `json:"variables"`
	Metadata  map[string]any `json:"metadata"`
}

// startExecutionResponse is the JSON response for an accepted execution.
type startExecutionResponse struct {
	ExecutionID string `json:"execution_id"`
}

// handleRegisterWorkflow accepts a definition as JSON or YAML.
func (s *Server) handleRegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	def, err := loader.LoadReader(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid definition body: "+err.Error())
		return
	}
	if def.CreatedBy == "" {
		def.CreatedBy = r.Header.Get(headerCallerID)
	}

	id, err := s.engine.RegisterWorkflow(def)
	if err != nil {
		s.writeEngineError(w, err, "register workflow")
		return
	}

	s.writeJSON(w, http.StatusCreated, registerWorkflowResponse{ID: id})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.ListWorkflows())
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	def, err := s.engine.GetWorkflow(chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err, "get workflow")
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

// handleStartExecution queues an execution. The invoker defaults to the
// X-Caller-Id header.
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	var req startExecutionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.InvokerID == "" {
		req.InvokerID = r.Header.Get(headerCallerID)
	}
	if req.InvokerID == "" {
		s.writeError(w, http.StatusBadRequest, "invoker_id is required")
		return
	}

	id, err := s.engine.StartExecution(r.Context(), chi.URLParam(r, "id"), req.InvokerID, req.Variables, req.Metadata)
	if err != nil {
		s.writeEngineError(w, err, "start execution")
		return
	}

	s.writeJSON(w, http.StatusAccepted, startExecutionResponse{ExecutionID: id})
}

// redactAll masks encrypted variables in every execution.
func redactAll(execs []*model.WorkflowExecution) []*model.WorkflowExecution {
	out := make([]*model.WorkflowExecution, len(execs))
	for i, e := range execs {
		out[i] = e.Redacted()
	}
	return out
}
