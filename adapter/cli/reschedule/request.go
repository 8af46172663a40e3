package reschedule

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/spf13/cobra"
)

var (
	requestAttendees   []string
	requestWindow      windowFlags
	requestInteractive bool
)

var requestCmd = &cobra.Command{
	Use:   "request <event-id>",
	Short: "Offer free slots for a meeting",
	Long: `Look up the meeting, read the busy time of every attendee and open a
session offering the first shared free slots.

Attendees default to the meeting's own invite list; --attendee replaces it.
Your own calendar is always included. Any open session for the same
meeting is superseded.

Examples:
  reslot reschedule request 7f3c2a
  reslot reschedule request 7f3c2a --attendee bob@example.com --days 3
  reslot reschedule request 7f3c2a --from 2026-03-02 --to 2026-03-06
  reslot reschedule request 7f3c2a --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringSliceVarP(&requestAttendees, "attendee", "a", nil, "attendee calendar (repeatable)")
	requestWindow.register(requestCmd)
	requestCmd.Flags().BoolVarP(&requestInteractive, "interactive", "i", false, "prompt for a slot and commit it right away")
}

func runRequest(cmd *cobra.Command, args []string) error {
	app, err := requireApp()
	if err != nil {
		return err
	}
	loc, err := location()
	if err != nil {
		return err
	}
	window, err := requestWindow.window(loc, time.Now())
	if err != nil {
		return err
	}

	result, err := app.RequestRescheduleHandler.Handle(cmd.Context(), commands.RequestRescheduleCommand{
		UserID:    app.CurrentUserID,
		EventID:   args[0],
		Attendees: requestAttendees,
		Window:    window,
	})
	if err != nil {
		return fmt.Errorf("failed to request reschedule: %w", err)
	}

	out := cmd.OutOrStdout()
	if result.Superseded != nil && !jsonOutput {
		fmt.Fprintf(out, "Superseded session %s\n\n", result.Superseded.ID())
	}
	dto := queries.ToSessionDTO(result.Session)
	if err := printSession(out, dto, loc); err != nil {
		return err
	}

	if !requestInteractive || dto.Status != "open" {
		return nil
	}
	return prompt(cmd, dto, loc)
}

// prompt reads a candidate index from stdin; an empty line or "q" cancels.
func prompt(cmd *cobra.Command, dto queries.SessionDTO, loc *time.Location) error {
	app, err := requireApp()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nSlot [0-%d, q to cancel]: ", len(dto.Candidates)-1)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	line = strings.TrimSpace(line)

	if line == "" || strings.EqualFold(line, "q") {
		session, err := app.CancelSessionHandler.Handle(cmd.Context(), commands.CancelSessionCommand{
			UserID:    app.CurrentUserID,
			SessionID: dto.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to cancel session: %w", err)
		}
		fmt.Fprintf(out, "Session %s %s\n", session.ID(), session.Status())
		return nil
	}

	index, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("invalid index %q", line)
	}
	return commit(cmd, dto.ID.String(), index, loc)
}
