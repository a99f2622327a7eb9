package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bobbyrathoree/macscope/internal/api"
	"github.com/bobbyrathoree/macscope/internal/auth"
	"github.com/bobbyrathoree/macscope/internal/config"
	"github.com/bobbyrathoree/macscope/internal/push"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan loop and HTTP/websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAuthSecrets(); err != nil {
		return err
	}

	comps, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	log := comps.log
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go comps.engine.Run(ctx)

	hub := push.NewHub(comps.store, log)
	authSvc := auth.NewService(cfg.JWTSecret, cfg.AdminSecretHash)
	server := api.NewServer(comps.store, comps.engine, comps.signer, hub, authSvc, api.OSKiller{}, comps.facts, comps.sigCache, comps.auditLog, log)
	router := api.NewRouter(server, cfg)

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", zap.String("addr", cfg.Addr()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	// Shut the codesign worker pool and close every live subscriber
	// before tearing down the HTTP server (spec §12's shutdown budget:
	// the pool rejects new tasks, subscribers receive a close).
	comps.pool.Shutdown()
	hub.Shutdown(shutdownCtx)

	return httpServer.Shutdown(shutdownCtx)
}
