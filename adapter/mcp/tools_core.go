package mcp

import (
	"context"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reslot/adapter/cli"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

type versionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("cli.health").
		Description("Report database, Redis and broker health; the worst check sets the overall status").
		Handler(func(ctx context.Context, _ struct{}) (*observability.OverallHealth, error) {
			if app.Health == nil {
				return &observability.OverallHealth{Status: observability.HealthStatusHealthy}, nil
			}
			health := app.Health.GetOverallHealth(ctx)
			return &health, nil
		})

	srv.Tool("cli.version").
		Description("Report the reslot build").
		Handler(func(context.Context, struct{}) (versionOutput, error) {
			return versionOutput{Version: cli.Version, Commit: cli.Commit, BuildDate: cli.BuildDate}, nil
		})

	return nil
}
