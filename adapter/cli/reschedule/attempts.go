package reschedule

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var attemptsLimit int

var attemptsCmd = &cobra.Command{
	Use:   "attempts [session-id]",
	Short: "Show reschedule attempts",
	Long: `Show the calendar writes made by select, including failed ones.

Without a session ID, lists your most recent attempts.

Examples:
  reslot reschedule attempts
  reslot reschedule attempts --limit 5
  reslot reschedule attempts 3b1e9d4a-0c6f-4f53-9b0e-2f7b0f1c9a11`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ListAttemptsHandler == nil {
			return errNotConfigured
		}
		loc, err := location()
		if err != nil {
			return err
		}

		query := queries.ListAttemptsQuery{UserID: app.CurrentUserID, Limit: attemptsLimit}
		if len(args) == 1 {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			query.SessionID = id
		}

		attempts, err := app.ListAttemptsHandler.Handle(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("failed to list attempts: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, attempts)
		}
		if len(attempts) == 0 {
			fmt.Fprintln(out, "No reschedule attempts found.")
			return nil
		}

		fmt.Fprintln(out, "Reschedule Attempts")
		fmt.Fprintln(out, strings.Repeat("-", 50))
		for _, attempt := range attempts {
			status := "success"
			if !attempt.Success {
				status = "failed"
			}
			fmt.Fprintf(out, "%s  %-7s  %s  [%d]\n",
				attempt.AttemptedAt.In(loc).Format("2006-01-02 15:04"),
				status,
				attempt.EventID,
				attempt.CandidateIdx,
			)
			if attempt.NewStart != nil && attempt.NewEnd != nil {
				fmt.Fprintf(out, "    to %s\n", formatSlot(attempt.NewStart.In(loc), attempt.NewEnd.In(loc)))
			}
			if attempt.SessionID != uuid.Nil && query.SessionID == uuid.Nil {
				fmt.Fprintf(out, "    session %s\n", attempt.SessionID)
			}
			if attempt.FailureReason != "" {
				fmt.Fprintf(out, "    reason: %s\n", attempt.FailureReason)
			}
		}
		return nil
	},
}

func init() {
	attemptsCmd.Flags().IntVarP(&attemptsLimit, "limit", "n", 20, "maximum attempts to show")
}
