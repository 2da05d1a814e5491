package api

import (
	"net/http"

	"github.com/seantiz/relay/internal/engine"
	"github.com/seantiz/relay/internal/store"
)

// statsResponse is the JSON response for GET /v1/stats. Engine counters
// cover the running process; history covers everything recorded.
type statsResponse struct {
	Engine  engine.Stats        `json:"engine"`
	History *store.HistoryStats `json:"history"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("get history stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Engine:  s.engine.Stats(),
		History: history,
	})
}

func (s *Server) handleListStepKinds(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Handlers().List())
}
