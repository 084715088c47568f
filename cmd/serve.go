package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/croftbar/leadscan/internal/api"
	"github.com/croftbar/leadscan/internal/clock/system"
	"github.com/croftbar/leadscan/internal/config"
	iduuid "github.com/croftbar/leadscan/internal/id/uuid"
	"github.com/croftbar/leadscan/internal/logging"
	"github.com/croftbar/leadscan/internal/orchestrator"
	"github.com/croftbar/leadscan/internal/places"
	qmemory "github.com/croftbar/leadscan/internal/queue/memory"
	"github.com/croftbar/leadscan/internal/scan"
	storememory "github.com/croftbar/leadscan/internal/storage/memory"
	"github.com/croftbar/leadscan/internal/storage/postgres"
	"github.com/croftbar/leadscan/internal/worker"
)

// newServeCmd creates the 'serve' subcommand. It runs the HTTP API and
// the scan worker in one process until interrupted.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP API and the scan worker",
		Long: `Starts the leadscan service: an HTTP API that accepts scan
submissions and a background worker that executes them one at a time
against the place-search provider.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := places.New(places.Config{
		APIKey:            cfg.Places.APIKey,
		BaseURL:           cfg.Places.BaseURL,
		MaxResults:        cfg.Places.MaxResultsPerSearch,
		RequestsPerSecond: cfg.Places.RequestsPerSecond,
		PageTokenDelay:    cfg.Places.PageTokenDelay(),
		RequestTimeout:    cfg.Places.RequestTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("init places client: %w", err)
	}

	queue := qmemory.New(cfg.Worker.QueueDepth)
	executor := orchestrator.New(store, provider, system.New(), orchestrator.Config{
		MaxResultsPerSearch: cfg.Places.MaxResultsPerSearch,
		FlushEvery:          cfg.Worker.FlushEvery,
	}, logger)

	w := worker.New(queue, store, executor, logger)
	go w.Run(ctx)

	server := api.NewServer(store, queue, iduuid.New(), system.New(), api.Config{
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Stop accepting work, then let the in-flight scan wind down within
	// the grace period.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	queue.Close()

	select {
	case <-w.Done():
		logger.Info("worker drained")
	case <-time.After(cfg.Worker.ShutdownGrace()):
		logger.Warn("worker did not finish within grace period, exiting anyway")
	}

	return nil
}

// buildStore selects Postgres when a DSN is configured and the in-memory
// store otherwise.
func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scan.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("no database configured, using in-memory store")
		return storememory.New(), func() {}, nil
	}

	pg, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifeMins) * time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres store: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("postgres store ready")
	return pg, pg.Close, nil
}
