package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpinternal "github.com/felixgeelhaar/reslot/internal/mcp"
	"github.com/felixgeelhaar/reslot/pkg/config"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := mcpinternal.Run(ctx, cfg, logger); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
