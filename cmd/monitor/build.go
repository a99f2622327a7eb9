package main

import (
	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/audit"
	"github.com/bobbyrathoree/macscope/internal/collectors"
	"github.com/bobbyrathoree/macscope/internal/config"
	"github.com/bobbyrathoree/macscope/internal/engine"
	"github.com/bobbyrathoree/macscope/internal/hostfacts"
	"github.com/bobbyrathoree/macscope/internal/sigcache"
	"github.com/bobbyrathoree/macscope/internal/store"
	"github.com/bobbyrathoree/macscope/internal/workerpool"
	apiutils "github.com/bobbyrathoree/macscope/internal/api/utils"
)

// components is every long-lived collaborator the serve and scan-once
// commands share, assembled once in buildComponents.
type components struct {
	log      *zap.Logger
	cfg      *config.Config
	coll     *collectors.Collectors
	sigCache *sigcache.Cache
	signer   workerpool.Signer
	pool     *workerpool.Pool
	facts    hostfacts.Provider
	auditLog *audit.Log
	store    *store.Store
	engine   *engine.Engine
}

func buildComponents(cfg *config.Config) (*components, error) {
	log := apiutils.NewLogger(cfg.LogLevel)

	coll := collectors.New(log)
	sigCache := sigcache.New()
	pool := workerpool.New(cfg.WorkerPoolSize, coll.Signature, log)
	signer := workerpool.WithFallback{Pool: pool, Fallback: workerpool.InlineFallback{Collect: coll.Signature}}

	facts := hostfacts.NewOSProvider()

	auditLog, err := audit.Open(cfg.AuditLogPath, log)
	if err != nil {
		return nil, err
	}

	st := store.New()
	eng := engine.New(coll, sigCache, signer, st, facts, auditLog, log)

	return &components{
		log: log, cfg: cfg, coll: coll, sigCache: sigCache,
		signer: signer, pool: pool, facts: facts, auditLog: auditLog,
		store: st, engine: eng,
	}, nil
}
