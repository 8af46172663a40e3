package mcp

import (
	"github.com/felixgeelhaar/reslot/adapter/cli"
	"github.com/felixgeelhaar/reslot/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container) *cli.App {
	cliApp := cli.NewApp(
		container.FindFreeSlotsHandler,
		container.RequestRescheduleHandler,
		container.SelectCandidateHandler,
		container.CancelSessionHandler,
		container.GetSessionHandler,
		container.ListAttemptsHandler,
	)

	cliApp.SetCurrentUserID(container.UserID)
	cliApp.SetHealth(container.Health)
	if container.OAuthService != nil {
		cliApp.SetOAuthService(container.OAuthService)
	}

	return cliApp
}
