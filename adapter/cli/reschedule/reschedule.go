// Package reschedule holds the reschedule and availability commands.
package reschedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	displayTZ  string
	jsonOutput bool
)

// Cmd is the reschedule command group
var Cmd = &cobra.Command{
	Use:     "reschedule",
	Aliases: []string{"rs"},
	Short:   "Find a new time for a meeting",
	Long: `Offer free slots shared by a meeting's attendees and move the meeting
to the one you pick.

Candidate indexes start at 0. Sessions expire after the configured TTL
(RESLOT_SESSION_TTL, five minutes by default). Selecting from a separate
invocation needs a shared session store (RESLOT_REDIS_URL); without one,
use 'request --interactive'.`,
}

func init() {
	Cmd.PersistentFlags().StringVar(&displayTZ, "tz", "", "display time zone (IANA name, default: local)")
	Cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON")

	Cmd.AddCommand(requestCmd)
	Cmd.AddCommand(selectCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(freeCmd)
	Cmd.AddCommand(attemptsCmd)
}

var errNotConfigured = errors.New("reschedule commands are not configured; check RESLOT_CALENDAR_PROVIDER and the database settings")

func requireApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil || app.RequestRescheduleHandler == nil {
		return nil, errNotConfigured
	}
	return app, nil
}

func location() (*time.Location, error) {
	if displayTZ == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(displayTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid --tz: %w", err)
	}
	return loc, nil
}

func parseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session ID: %w", err)
	}
	return id, nil
}

// parseInstant accepts RFC 3339 or a YYYY-MM-DD date at midnight in loc.
func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, use RFC 3339 or YYYY-MM-DD", raw)
	}
	return t, nil
}

// windowFlags is the --from/--to/--days triple shared by request and free.
type windowFlags struct {
	from string
	to   string
	days int
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "window start (RFC 3339 or YYYY-MM-DD, default: now)")
	cmd.Flags().StringVar(&f.to, "to", "", "window end (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().IntVar(&f.days, "days", 0, "window length in days (default: RESLOT_WINDOW_DAYS)")
}

// window returns the zero window when no flag is set, leaving the horizon to
// the handler.
func (f *windowFlags) window(loc *time.Location, now time.Time) (availability.SearchWindow, error) {
	if f.from == "" && f.to == "" && f.days == 0 {
		return availability.SearchWindow{}, nil
	}
	if f.days < 0 {
		return availability.SearchWindow{}, errors.New("--days must be positive")
	}

	start := now
	if f.from != "" {
		t, err := parseInstant(f.from, loc)
		if err != nil {
			return availability.SearchWindow{}, err
		}
		start = t
	}

	switch {
	case f.to != "":
		end, err := parseInstant(f.to, loc)
		if err != nil {
			return availability.SearchWindow{}, err
		}
		return availability.NewSearchWindow(start, end), nil
	case f.days > 0:
		return availability.NewSearchWindow(start, start.AddDate(0, 0, f.days)), nil
	default:
		return availability.SearchWindow{}, errors.New("--from needs --to or --days")
	}
}

func formatSlot(start, end time.Time) string {
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return fmt.Sprintf("%s %s-%s", start.Format("Mon Jan 2"), start.Format("15:04"), end.Format("15:04 MST"))
	}
	return fmt.Sprintf("%s - %s", start.Format("Mon Jan 2 15:04"), end.Format("Mon Jan 2 15:04 MST"))
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	switch {
	case hours >= 24:
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSession renders a session; a session without candidates reads as
// "no slots", never as a failure.
func printSession(out io.Writer, dto queries.SessionDTO, loc *time.Location) error {
	dto = dto.In(loc)
	if jsonOutput {
		return printJSON(out, dto)
	}

	fmt.Fprintf(out, "Session %s (%s)\n", dto.ID, dto.Status)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "  Event:     %s\n", dto.EventID)
	if len(dto.Attendees) > 0 {
		fmt.Fprintf(out, "  Attendees: %s\n", strings.Join(dto.Attendees, ", "))
	}
	fmt.Fprintf(out, "  Window:    %s\n", formatSlot(dto.WindowStart, dto.WindowEnd))

	if dto.NoSlots {
		fmt.Fprintln(out, "\nNo free slots in this window. Try a wider window or fewer attendees.")
		return nil
	}

	if dto.Chosen != nil {
		fmt.Fprintf(out, "  Moved to:  %s\n", formatSlot(dto.Chosen.Start, dto.Chosen.End))
		return nil
	}

	fmt.Fprintln(out)
	for _, c := range dto.Candidates {
		fmt.Fprintf(out, "  [%d] %s (%s)\n", c.Index, formatSlot(c.Start, c.End), formatDuration(c.End.Sub(c.Start)))
	}
	switch dto.Status {
	case "open":
		fmt.Fprintf(out, "\nPick one before %s: reslot reschedule select %s <index>\n", dto.ExpiresAt.Format("15:04:05"), dto.ID)
	default:
		if dto.CloseReason != "" {
			fmt.Fprintf(out, "\nClosed: %s\n", dto.CloseReason)
		}
	}
	return nil
}
