package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var connectCmd = &cobra.Command{
	Use:   "connect <provider>",
	Short: "Authorize a calendar provider",
	Long: `Print the authorization URL, read the code the provider hands back and
store the encrypted tokens.

Examples:
  reslot auth connect google
  reslot auth connect microsoft`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := calendarDomain.ParseProviderType(args[0])
		if err != nil {
			return err
		}
		svc, userID, err := oauthFor(string(provider))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		state := uuid.New().String()
		fmt.Fprintf(out, "Authorize %s by visiting:\n%s\n\nState: %s\n", provider.DisplayName(), svc.AuthURL(state), state)

		in := cmd.InOrStdin()
		if interactive(in) {
			fmt.Fprint(out, "\nEnter the authorization code: ")
		}
		code, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read code: %w", err)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return errors.New("authorization code is required")
		}

		if _, err := svc.ExchangeAndStore(cmd.Context(), userID, code); err != nil {
			return fmt.Errorf("failed to exchange code: %w", err)
		}
		fmt.Fprintf(out, "\nConnected %s.\n", provider.DisplayName())
		return nil
	},
}

// interactive reports whether in is a terminal worth prompting on.
func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
