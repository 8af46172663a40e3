package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List calendar providers and their connection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		app := cli.GetApp()
		var (
			registry *identityOAuth.Registry
			userID   uuid.UUID
		)
		if app != nil {
			registry, userID = app.OAuthService, app.CurrentUserID
		}
		if registry == nil || len(registry.Providers()) == 0 {
			fmt.Fprintln(out, "No OAuth providers configured.")
		}
		for _, p := range calendarDomain.ProviderTypes() {
			writeProviderRow(cmd.Context(), out, p, registry, userID)
		}
		return nil
	},
}

func writeProviderRow(ctx context.Context, out io.Writer, p calendarDomain.ProviderType, registry *identityOAuth.Registry, userID uuid.UUID) {
	status := "configured via environment"
	if p.RequiresOAuth() {
		status = "oauth not configured"
		if registry != nil {
			if flow := registry.Service(p); flow != nil {
				status = "not connected"
				if src, err := flow.TokenSource(ctx, userID); err == nil && src != nil {
					status = "connected"
				}
			}
		}
	}
	if !p.CanWrite() {
		status += ", read-only"
	}
	fmt.Fprintf(out, "%-10s %-18s %s\n", p, p.DisplayName(), status)
}
