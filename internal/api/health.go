package api

import "net/http"

type healthResponse struct {
	Status              string `json:"status"`
	ActiveExecutions    int    `json:"active_executions"`
	RegisteredWorkflows int    `json:"registered_workflows"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.Stats()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:              "ok",
		ActiveExecutions:    st.ActiveExecutions,
		RegisteredWorkflows: st.RegisteredWorkflows,
	})
}
