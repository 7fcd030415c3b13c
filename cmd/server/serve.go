package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neftie/neftie/backend/internal/auth"
	"github.com/neftie/neftie/backend/internal/config"
	"github.com/neftie/neftie/backend/internal/graph"
	"github.com/neftie/neftie/backend/internal/logging"
	"github.com/neftie/neftie/backend/internal/posts"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the GraphQL API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	log := logging.Setup(logging.Options{
		Service: "neftie",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
	}, nil)
	slog.SetDefault(log)
	return log
}

// services are the application services built on the backends.
type services struct {
	tokens   *auth.TokenIssuer
	accounts *auth.Service
	posts    *posts.Service
}

func newServices(cfg *config.Config, b *backends, log *slog.Logger) *services {
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	return &services{
		tokens:   tokens,
		accounts: auth.NewService(b.users, auth.NewBcryptHasher(cfg.BcryptCost), tokens, b.limiter, log.With("component", "accounts")),
		posts:    posts.NewService(b.posts, b.users, b.tx, log.With("component", "posts")),
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := newLogger(cfg)

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	b, err := openBackends(connectCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer b.Close()

	svc := newServices(cfg, b, log)
	schema, err := graph.NewSchema(svc.accounts, svc.posts, log.With("component", "graphql"))
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}

	handler := newRouter(routerDeps{
		corsOrigins: cfg.CORSOrigins,
		tokens:      svc.tokens,
		graphql:     graph.NewHandler(schema, log),
		files:       b.files,
		log:         log,
	})

	// ── Reconciler ───────────────────────────────────────────
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		svc.posts.RunReconciler(workerCtx, cfg.ReconcileInterval)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("backend listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		return err
	}
	return nil
}

