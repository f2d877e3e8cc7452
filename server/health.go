package server

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status     string `json:"status"`
	DB         string `json:"db"`
	SSEClients int    `json:"sseClients"`
	Uptime     string `json:"uptime"`
}

// handleHealth reports liveness. Degraded means the process is up but the
// database is not answering.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		DB:         "ok",
		SSEClients: s.bus.Subscribers(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check db ping failed", "error", err)
		resp.Status = "degraded"
		resp.DB = "unreachable"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
