package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahl-labs/lotteryd/internal/agent"
	"github.com/ahl-labs/lotteryd/internal/archive"
	"github.com/ahl-labs/lotteryd/internal/auth"
	"github.com/ahl-labs/lotteryd/internal/config"
	"github.com/ahl-labs/lotteryd/internal/database"
	"github.com/ahl-labs/lotteryd/internal/engine"
	"github.com/ahl-labs/lotteryd/internal/entropy"
	"github.com/ahl-labs/lotteryd/internal/epoch"
	"github.com/ahl-labs/lotteryd/internal/notify"
	"github.com/ahl-labs/lotteryd/internal/season"
	"github.com/ahl-labs/lotteryd/internal/version"
	"github.com/ahl-labs/lotteryd/internal/weight"
)

func main() {
	configPath := flag.String("config", "configs/lotteryd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting lotteryd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"epoch_duration", cfg.Engine.Epoch.Duration,
		"topics", len(cfg.Engine.Topics),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Core stores
	agents := agent.NewRegistry(cfg.Engine, logger)
	policy := weight.NewPolicy(cfg.Engine)
	epochs := epoch.NewStore(cfg.Engine, agents, policy, logger)
	board := season.NewBoard(cfg.Engine.Season.Duration)

	logger.Info("season opened",
		"season_id", board.Info().ID,
		"ends_at", board.Info().EndsAt,
	)

	// External entropy source
	seeds := entropy.NewClient(cfg.Entropy, entropy.WithLogger(logger))

	// Settlement sinks
	sinks := []engine.Sink{notify.NewLogSink(logger)}

	var publisher *notify.Publisher
	if len(cfg.Relays.URLs) > 0 {
		var signer *auth.Signer
		if cfg.Relays.SigningKeyPath != "" {
			signer, err = auth.LoadSigner(cfg.Relays.SigningKeyID, cfg.Relays.SigningKeyPath)
			if err != nil {
				logger.Error("failed to load signing key", "error", err)
				os.Exit(1)
			}
			logger.Info("broadcast signing enabled", "key_id", signer.KeyID)
		}

		publisher = notify.NewPublisher(cfg.Relays, cfg.Instance.ID, signer, logger)
		if err := publisher.Start(ctx); err != nil {
			logger.Error("failed to start relay publisher", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, publisher)
	}

	var pool *pgxpool.Pool
	var archiver *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.DB.Host,
			"port", cfg.Archive.DB.Port,
			"database", cfg.Archive.DB.Name,
		)

		pool, err = database.Connect(ctx, cfg.Archive.DB)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := archive.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to ensure archive schema", "error", err)
			os.Exit(1)
		}

		archiver = archive.NewWriter(cfg.Archive, pool, logger)
		if err := archiver.Start(ctx); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, archiver)

		logger.Info("archive writer connected")
	}

	// Engine
	service := engine.NewService(cfg.Engine, agents, epochs, board, seeds, sinks, logger)

	var sched *engine.Scheduler
	if cfg.Scheduler.Enabled {
		sched = engine.NewScheduler(cfg.Scheduler, service, cfg.Engine.Epoch.Duration, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// HTTP adapter
	api := newAPIServer(service, sched, pool, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.handler(),
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("lotteryd running",
		"instance_id", cfg.Instance.ID,
		"scheduler", cfg.Scheduler.Enabled,
		"relays", len(cfg.Relays.URLs),
		"archive", cfg.Archive.Enabled,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	httpServer.Shutdown(shutdownCtx)

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if publisher != nil {
		publisher.Stop(shutdownCtx)
	}
	if archiver != nil {
		archiver.Stop(shutdownCtx)
	}

	logger.Info("lotteryd stopped")
}
