package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/api/utils"
	"github.com/bobbyrathoree/macscope/internal/audit"
	"github.com/bobbyrathoree/macscope/internal/auth"
	"github.com/bobbyrathoree/macscope/internal/engine"
	"github.com/bobbyrathoree/macscope/internal/hostfacts"
	"github.com/bobbyrathoree/macscope/internal/push"
	"github.com/bobbyrathoree/macscope/internal/sigcache"
	"github.com/bobbyrathoree/macscope/internal/store"
	"github.com/bobbyrathoree/macscope/internal/workerpool"
)

// Server holds every collaborator the HTTP surface needs to answer a
// request; it carries no mutable state of its own.
type Server struct {
	store    *store.Store
	engine   *engine.Engine
	signer   workerpool.Signer
	hub      *push.Hub
	authSvc  *auth.Service
	killer   Killer
	facts    hostfacts.Provider
	sigCache *sigcache.Cache
	audit    *audit.Log
	log      *zap.Logger
	started  time.Time
}

// NewServer wires a Server from its collaborators.
func NewServer(st *store.Store, eng *engine.Engine, signer workerpool.Signer, hub *push.Hub, authSvc *auth.Service, killer Killer, facts hostfacts.Provider, sigCache *sigcache.Cache, al *audit.Log, log *zap.Logger) *Server {
	return &Server{
		store: st, engine: eng, signer: signer, hub: hub, authSvc: authSvc, killer: killer,
		facts: facts, sigCache: sigCache, audit: al, log: log, started: time.Now(),
	}
}

// healthResponse is the body GET /api/health returns.
type healthResponse struct {
	Status string        `json:"status"`
	Uptime time.Duration `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, healthResponse{Status: "ok", Uptime: time.Since(s.started) / time.Second})
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	utils.WriteJSON(w, snap.Processes)
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	pid, ok := utils.ParsePID(mux.Vars(r)["pid"])
	if !ok {
		utils.WriteError(w, utils.NewAPIError("invalid pid", http.StatusBadRequest))
		return
	}

	snap := s.store.Snapshot()
	for _, p := range snap.Processes {
		if p.PID == pid {
			utils.WriteJSON(w, p)
			return
		}
	}
	utils.WriteError(w, utils.NewAPIError("process not found", http.StatusNotFound))
}

// statsResponse is the body GET /api/stats returns: an aggregate view of
// the last scan plus host facts, for a dashboard summary panel.
type statsResponse struct {
	ProcessCount     int             `json:"process_count"`
	LevelCounts      map[string]int  `json:"level_counts"`
	NextScanInterval time.Duration   `json:"next_scan_interval_seconds"`
	LiveWorkers      int             `json:"live_signature_workers"`
	SignatureCacheSz int             `json:"signature_cache_size"`
	Subscribers      int             `json:"websocket_subscribers"`
	Host             hostfacts.Facts `json:"host"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	counts := map[string]int{"LOW": 0, "MED": 0, "HIGH": 0, "CRITICAL": 0}
	for _, p := range snap.Processes {
		counts[p.Level.String()]++
	}

	liveWorkers := 0
	if lw, ok := s.signer.(interface{ LiveWorkers() int }); ok {
		liveWorkers = lw.LiveWorkers()
	}

	utils.WriteJSON(w, statsResponse{
		ProcessCount:     len(snap.Processes),
		LevelCounts:      counts,
		NextScanInterval: s.engine.LastInterval() / time.Second,
		LiveWorkers:      liveWorkers,
		SignatureCacheSz: s.sigCache.Len(),
		Subscribers:      s.hub.ConnectionCount(),
		Host:             s.facts.Facts(),
	})
}

type tokenRequest struct {
	Secret string `json:"secret"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, utils.NewAPIError("invalid request body", http.StatusBadRequest))
		return
	}

	token, err := s.authSvc.IssueToken(req.Secret)
	if err != nil {
		utils.WriteError(w, utils.NewAPIError("invalid secret", http.StatusUnauthorized))
		return
	}
	utils.WriteJSON(w, tokenResponse{Token: token})
}

func (s *Server) handleKillProcess(w http.ResponseWriter, r *http.Request) {
	pid, ok := utils.ParsePID(mux.Vars(r)["pid"])
	if !ok {
		utils.WriteError(w, utils.NewAPIError("invalid pid", http.StatusBadRequest))
		return
	}

	snap := s.store.Snapshot()
	found := false
	for _, p := range snap.Processes {
		if p.PID == pid {
			found = true
			break
		}
	}
	if !found {
		utils.WriteError(w, utils.NewAPIError("process not found", http.StatusNotFound))
		return
	}

	killErr := s.killer.Kill(pid)
	s.audit.RecordKillAction(pid, killErr)
	if killErr != nil {
		s.log.Error("api: kill failed", zap.Int("pid", pid), zap.Error(killErr))
		utils.WriteError(w, utils.NewAPIError("failed to kill process", http.StatusInternalServerError))
		return
	}

	utils.WriteJSON(w, map[string]any{"pid": pid, "killed": true})
}
