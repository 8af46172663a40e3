package reschedule

import (
	"fmt"

	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel an open session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := requireApp()
		if err != nil {
			return err
		}
		sessionID, err := parseSessionID(args[0])
		if err != nil {
			return err
		}

		session, err := app.CancelSessionHandler.Handle(cmd.Context(), commands.CancelSessionCommand{
			UserID:    app.CurrentUserID,
			SessionID: sessionID,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel session: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, queries.ToSessionDTO(session))
		}
		fmt.Fprintf(out, "Session %s %s\n", session.ID(), session.Status())
		return nil
	},
}
