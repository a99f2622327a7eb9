package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/bobbyrathoree/macscope/internal/api/utils"
	"github.com/bobbyrathoree/macscope/internal/config"
)

// NewRouter builds the full route tree: health, read-only process/stats
// endpoints, the bearer-gated kill endpoint, token issuance, and the
// websocket upgrade route, behind security-header and rate-limit
// middleware (spec §6).
func NewRouter(s *Server, cfg *config.Config) http.Handler {
	r := mux.NewRouter()

	r.Use(utils.SecurityHeadersMiddleware)
	r.Use(utils.RateLimitMiddleware(
		rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst, cfg.DefaultRateLimit))

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/processes", s.handleListProcesses).Methods(http.MethodGet)
	r.HandleFunc("/api/processes/{pid}", s.handleGetProcess).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/token", s.handleIssueToken).Methods(http.MethodPost)

	r.Handle("/api/processes/{pid}/kill",
		s.authSvc.RequireBearer(http.HandlerFunc(s.handleKillProcess))).Methods(http.MethodPost)

	r.Handle("/ws", s.hub).Methods(http.MethodGet)

	return r
}
