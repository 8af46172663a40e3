package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/reslot/adapter/api"
	"github.com/felixgeelhaar/reslot/internal/app"
	"github.com/felixgeelhaar/reslot/pkg/config"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	slog.SetDefault(logger)
	logger.Info("starting reslot worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv())
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()

	if err := container.Sweeper.Start(ctx); err != nil {
		return err
	}
	logger.Info("session sweeper started", "interval", cfg.SweepInterval)

	processor := container.OutboxProcessor
	if cfg.OutboxProcessorEnabled {
		logger.Info("starting outbox processor",
			"poll_interval", cfg.OutboxPollInterval,
			"batch_size", cfg.OutboxBatchSize,
			"max_retries", cfg.OutboxMaxRetries,
		)
		if err := processor.Start(ctx); err != nil {
			return err
		}
		go cleanupOutbox(ctx, container, logger)
		go logOutboxStats(ctx, container, logger)
	}

	if cfg.WorkerHealthAddr != "" {
		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           healthMux(container),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", "error", err)
			}
		}()
		defer shutdown(logger, "health server", healthSrv.Shutdown)
	}

	if cfg.APIEnabled {
		serverCfg := api.DefaultServerConfig()
		serverCfg.Addr = cfg.APIAddr
		apiSrv := api.NewServer(serverCfg, api.NewRescheduleHandler(api.RescheduleHandlerConfig{
			FindFree:     container.FindFreeSlotsHandler,
			Request:      container.RequestRescheduleHandler,
			Select:       container.SelectCandidateHandler,
			Cancel:       container.CancelSessionHandler,
			GetSession:   container.GetSessionHandler,
			ListAttempts: container.ListAttemptsHandler,
			UserID:       container.UserID,
			Logger:       logger,
		}), container.Health, logger)
		go func() {
			if err := apiSrv.Start(); err != nil {
				logger.Error("api server error", "error", err)
			}
		}()
		defer shutdown(logger, "api server", apiSrv.Shutdown)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	return nil
}

func healthMux(container *app.Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := container.OutboxProcessor.GetStats()
		sweeper := container.Sweeper.Stats()
		health := container.Health.GetOverallHealth(r.Context())

		status := http.StatusOK
		if health.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		var sweepErr string
		if sweeper.LastErr != nil {
			sweepErr = sweeper.LastErr.Error()
		}
		writeJSON(w, status, map[string]any{
			"status": health.Status,
			"checks": health.Checks,
			"outbox": map[string]any{
				"running":           stats.IsRunning,
				"published":         stats.PublishedCount,
				"failed":            stats.FailedCount,
				"dead":              stats.DeadCount,
				"lag_seconds":       stats.LagSeconds,
				"last_processed_at": stats.LastProcessedAt,
				"last_error_at":     stats.LastErrorAt,
				"last_error":        stats.LastError,
			},
			"sweeper": map[string]any{
				"running":    sweeper.Running,
				"passes":     sweeper.Passes,
				"last_run":   sweeper.LastRun,
				"last_error": sweepErr,
			},
		})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := container.DBConn.Ping(checkCtx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("/metrics", container.Prometheus.Handler())
	return mux
}

func cleanupOutbox(ctx context.Context, container *app.Container, logger *slog.Logger) {
	cfg := container.Config
	ticker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				continue
			}
			if deleted > 0 {
				logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
			}
		}
	}
}

func logOutboxStats(ctx context.Context, container *app.Container, logger *slog.Logger) {
	ticker := time.NewTicker(container.Config.OutboxStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := container.OutboxProcessor.GetStats()
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
				"lag_seconds", stats.LagSeconds,
				"oldest_message_at", stats.OldestMessageAt,
				"last_processed_at", stats.LastProcessedAt,
				"last_error_at", stats.LastErrorAt,
				"last_error", stats.LastError,
			)
		}
	}
}

func shutdown(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn(name+" shutdown error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
