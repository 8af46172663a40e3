// Package mcp serves the reschedule tools over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/middleware"
	"github.com/felixgeelhaar/reslot/adapter/cli"
	mcplocal "github.com/felixgeelhaar/reslot/adapter/mcp"
	"github.com/felixgeelhaar/reslot/internal/app"
	"github.com/felixgeelhaar/reslot/pkg/config"
)

// Run wires the container, starts the session sweeper and outbox relay, and
// serves MCP until ctx ends. Cancellation is a clean exit.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer container.Close()

	// Sessions live as long as the server, so expired ones need sweeping.
	if err := container.Sweeper.Start(ctx); err != nil {
		logger.Warn("session sweeper not started", "error", err)
	}
	if cfg.OutboxProcessorEnabled {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			logger.Warn("outbox processor not started", "error", err)
		}
	}

	err = Serve(ctx, cfg, NewCLIApp(container), logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Serve exposes cliApp's tools over streamable HTTP on cfg.MCPAddr.
func Serve(ctx context.Context, cfg *config.Config, cliApp *cli.App, logger *slog.Logger) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv, err := NewServer(cliApp, logger)
	if err != nil {
		return err
	}
	logger.Info("mcp server listening", "addr", cfg.MCPAddr, "auth", cfg.MCPAuthToken != "")
	return mcpgo.ServeHTTPWithMiddleware(ctx, srv, cfg.MCPAddr, nil,
		mcpgo.WithMiddleware(middlewareStack(cfg.MCPAuthToken, logger)...))
}

// NewServer registers the tools, resources and prompts. Only tool
// registration failures are fatal.
func NewServer(cliApp *cli.App, logger *slog.Logger) (*mcpgo.Server, error) {
	if cliApp == nil {
		return nil, errors.New("CLI app is required")
	}
	srv := mcpgo.NewServer(mcpgo.ServerInfo{
		Name:    "reslot-mcp",
		Version: cli.Version,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})

	deps := mcplocal.ToolDependencies{App: cliApp, OAuth: cliApp.OAuthService}
	if err := mcplocal.RegisterCLITools(srv, deps); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	if err := mcplocal.RegisterResources(srv, deps); err != nil {
		logger.Warn("mcp resources unavailable", "error", err)
	}
	if err := mcplocal.RegisterPrompts(srv, deps); err != nil {
		logger.Warn("mcp prompts unavailable", "error", err)
	}
	return srv, nil
}

// middlewareStack puts bearer auth in front of the default stack when a
// token is configured.
func middlewareStack(token string, logger *slog.Logger) []middleware.Middleware {
	log := slogAdapter{logger.With("component", "mcp")}
	stack := middleware.DefaultStack(log)
	if token == "" {
		logger.Warn("MCP auth token not set; requests will be unauthenticated")
		return stack
	}
	auth := middleware.BearerTokenAuthenticator(middleware.StaticTokens(map[string]*middleware.Identity{
		token: {ID: "mcp", Name: "mcp"},
	}))
	return append([]middleware.Middleware{middleware.Auth(auth, middleware.WithAuthLogger(log))}, stack...)
}

// slogAdapter satisfies the mcp-go middleware logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(msg string, fields ...middleware.Field) {
	a.log(slog.LevelDebug, msg, fields)
}

func (a slogAdapter) Info(msg string, fields ...middleware.Field) {
	a.log(slog.LevelInfo, msg, fields)
}

func (a slogAdapter) Warn(msg string, fields ...middleware.Field) {
	a.log(slog.LevelWarn, msg, fields)
}

func (a slogAdapter) Error(msg string, fields ...middleware.Field) {
	a.log(slog.LevelError, msg, fields)
}

func (a slogAdapter) log(level slog.Level, msg string, fields []middleware.Field) {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	a.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
