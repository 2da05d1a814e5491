package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/model"
	"github.com/seantiz/relay/internal/store"
)

// listExecutionsResponse wraps the in-memory execution list.
type listExecutionsResponse struct {
	Executions []*model.WorkflowExecution `json:"executions"`
	Total      int                        `json:"total"`
}

// cancelResponse is the JSON response for DELETE /v1/executions/{id}.
type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// historyResponse is the JSON response for GET /v1/executions/{id}/history.
type historyResponse struct {
	Execution *store.ExecutionRecord `json:"execution"`
	Events    []model.Event          `json:"events"`
}

// listHistoryResponse wraps the paginated durable execution list.
type listHistoryResponse struct {
	Executions []*store.ExecutionRecord `json:"executions"`
	Total      int                      `json:"total"`
	Limit      int                      `json:"limit"`
	Offset     int                      `json:"offset"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	execs := s.engine.ListExecutions(engine.ExecutionFilter{
		WorkflowID: q.Get("workflow_id"),
		Status:     model.ExecutionStatus(q.Get("status")),
	})
	s.writeJSON(w, http.StatusOK, listExecutionsResponse{
		Executions: redactAll(execs),
		Total:      len(execs),
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.engine.GetExecution(chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err, "get execution")
		return
	}
	s.writeJSON(w, http.StatusOK, exec.Redacted())
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	cancelled, err := s.engine.CancelExecution(chi.URLParam(r, "id"), s.caller(r))
	if err != nil {
		s.writeEngineError(w, err, "cancel execution")
		return
	}
	s.writeJSON(w, http.StatusOK, cancelResponse{Cancelled: cancelled})
}

// handleGetHistory returns the durable record of an execution, which outlives
// its eviction from the engine.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err, "get execution history")
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err, "list execution events")
		return
	}

	s.writeJSON(w, http.StatusOK, historyResponse{Execution: rec, Events: events})
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)

	records, total, err := s.store.ListExecutions(r.Context(), r.URL.Query().Get("workflow_id"), limit, offset)
	if err != nil {
		s.writeEngineError(w, err, "list execution history")
		return
	}
	if records == nil {
		records = []*store.ExecutionRecord{}
	}

	s.writeJSON(w, http.StatusOK, listHistoryResponse{
		Executions: records,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	})
}
