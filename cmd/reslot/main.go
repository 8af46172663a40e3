package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	cliAuth "github.com/felixgeelhaar/reslot/adapter/cli/auth"
	"github.com/felixgeelhaar/reslot/adapter/cli/mcp"
	"github.com/felixgeelhaar/reslot/adapter/cli/reschedule"
	"github.com/felixgeelhaar/reslot/internal/app"
	mcpinternal "github.com/felixgeelhaar/reslot/internal/mcp"
	"github.com/felixgeelhaar/reslot/pkg/config"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv())
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// The container is built after flag parsing so --config applies.
	cli.SetInitializer(func(ctx context.Context) (*cli.App, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}

		// A CLI run is short; relay whatever the command wrote to the outbox
		// before exiting.
		release := func() {
			if cfg.OutboxProcessorEnabled {
				if err := container.OutboxProcessor.ProcessOnce(context.Background()); err != nil {
					logger.Warn("outbox relay failed", "error", err)
				}
			}
			container.Close()
		}
		return mcpinternal.NewCLIApp(container), release, nil
	})

	cli.AddCommand(reschedule.Cmd)
	cli.AddCommand(cliAuth.Cmd)
	cli.AddCommand(mcp.Cmd)

	cli.Execute(ctx)
}
