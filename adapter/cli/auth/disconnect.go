package auth

import (
	"fmt"

	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/spf13/cobra"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <provider>",
	Short: "Delete stored tokens for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := calendarDomain.ParseProviderType(args[0])
		if err != nil {
			return err
		}
		svc, userID, err := oauthFor(string(provider))
		if err != nil {
			return err
		}
		if err := svc.Revoke(cmd.Context(), userID); err != nil {
			return fmt.Errorf("failed to disconnect: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s.\n", provider.DisplayName())
		return nil
	},
}
