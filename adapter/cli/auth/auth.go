// Package auth holds the calendar authorization commands.
package auth

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize calendar access",
	Long: `Authorize reslot to read and move meetings in your calendar.

Google and Microsoft use OAuth2; set RESLOT_GOOGLE_CLIENT_ID and
RESLOT_GOOGLE_CLIENT_SECRET (or the MICROSOFT equivalents) and
RESLOT_ENCRYPTION_KEY first. CalDAV and iCalendar feeds are configured
through their own settings and need no authorization.`,
}

var authProvider string

func init() {
	Cmd.PersistentFlags().StringVarP(&authProvider, "provider", "p", string(calendarDomain.ProviderGoogle), "calendar provider (google, microsoft)")

	Cmd.AddCommand(authURLCmd)
	Cmd.AddCommand(authExchangeCmd)
	Cmd.AddCommand(connectCmd)
	Cmd.AddCommand(disconnectCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(keygenCmd)
}

// oauthFor resolves the OAuth service and current user for provider.
func oauthFor(provider string) (identityOAuth.Provider, uuid.UUID, error) {
	app := cli.GetApp()
	if app == nil || app.OAuthService == nil {
		return nil, uuid.Nil, errors.New("auth service not configured; set RESLOT_ENCRYPTION_KEY")
	}
	if app.CurrentUserID == uuid.Nil {
		return nil, uuid.Nil, errors.New("current user not configured")
	}

	svc, err := app.OAuthService.Lookup(provider)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return svc, app.CurrentUserID, nil
}

var authURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Generate OAuth2 authorization URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, err := oauthFor(authProvider)
		if err != nil {
			return err
		}
		state := uuid.New().String()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, svc.AuthURL(state))
		fmt.Fprintf(out, "State: %s\n", state)
		return nil
	},
}

var authExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange OAuth2 code for tokens and store them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if authCode == "" {
			return errors.New("missing --code")
		}
		svc, userID, err := oauthFor(authProvider)
		if err != nil {
			return err
		}
		if _, err := svc.ExchangeAndStore(cmd.Context(), userID, authCode); err != nil {
			return fmt.Errorf("failed to exchange code: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Tokens stored.")
		return nil
	},
}

var authCode string

func init() {
	authExchangeCmd.Flags().StringVar(&authCode, "code", "", "authorization code")
}
