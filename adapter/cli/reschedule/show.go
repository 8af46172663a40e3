package reschedule

import (
	"fmt"

	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:     "show <session-id>",
	Aliases: []string{"get"},
	Short:   "Show a session and its candidates",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		loc, err := location()
		if err != nil {
			return err
		}
		sessionID, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		dto, err := app.GetSessionHandler.Handle(cmd.Context(), queries.GetSessionQuery{
			UserID:    app.CurrentUserID,
			SessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		return printSession(cmd.OutOrStdout(), *dto, loc)
	},
}
