package mcp

import (
	"log/slog"

	mcpinternal "github.com/felixgeelhaar/reslot/internal/mcp"
	"github.com/felixgeelhaar/reslot/pkg/config"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Serve the reschedule tools over streamable HTTP on RESLOT_MCP_ADDR.
Set RESLOT_MCP_AUTH_TOKEN to require a bearer token.`,
	// Builds its own container with the server's lifetime.
	Annotations: map[string]string{"reslot/no-app": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level := slog.LevelInfo
		if cfg.IsDevelopment() {
			level = slog.LevelDebug
		}
		logger := observability.NewLogger(observability.LogConfig{Level: level, Output: cmd.ErrOrStderr()})
		return mcpinternal.Run(cmd.Context(), cfg, logger)
	},
}
