package reschedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select <session-id> <index>",
	Short: "Move the meeting to an offered slot",
	Long: `Commit one of the session's candidates. The meeting is re-read first;
if it was deleted the session expires. A failed calendar write leaves the
session open so you can pick again.

Examples:
  reslot reschedule select 3b1e9d4a-0c6f-4f53-9b0e-2f7b0f1c9a11 0`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		loc, err := location()
		if err != nil {
			return err
		}
		return commit(cmd, args[0], index, loc)
	},
}

func commit(cmd *cobra.Command, rawID string, index int, loc *time.Location) error {
	app, err := requireApp()
	if err != nil {
		return err
	}
	sessionID, err := parseSessionID(rawID)
	if err != nil {
		return err
	}

	result, err := app.SelectCandidateHandler.Handle(cmd.Context(), commands.SelectCandidateCommand{
		UserID:    app.CurrentUserID,
		SessionID: sessionID,
		Index:     index,
	})
	if err != nil {
		return fmt.Errorf("failed to select slot: %w", err)
	}

	out := cmd.OutOrStdout()
	dto := queries.ToSessionDTO(result.Session)
	if jsonOutput {
		return printJSON(out, dto.In(loc))
	}
	chosen := dto.In(loc).Chosen
	if chosen == nil {
		return printSession(out, dto, loc)
	}
	fmt.Fprintf(out, "Moved %s to %s\n", dto.EventID, formatSlot(chosen.Start, chosen.End))
	return nil
}
