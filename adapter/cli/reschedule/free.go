package reschedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/reslot/adapter/cli"
	"github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	"github.com/spf13/cobra"
)

var (
	freeAttendees   []string
	freeWindow      windowFlags
	freeLimit       int
	freeMinDuration int
	freeExcludeSelf bool
)

var freeCmd = &cobra.Command{
	Use:   "free",
	Short: "List time free for every attendee",
	Long: `Merge the busy time of the given attendees and your own calendar and
print the free gaps, earliest first.

Examples:
  reslot reschedule free --attendee bob@example.com
  reslot reschedule free -a bob@example.com -a carol@example.com --days 2 --min 30
  reslot reschedule free -a bob@example.com --exclude-self --limit 0`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.FindFreeSlotsHandler == nil {
			return errNotConfigured
		}
		loc, err := location()
		if err != nil {
			return err
		}
		window, err := freeWindow.window(loc, time.Now())
		if err != nil {
			return err
		}

		result, err := app.FindFreeSlotsHandler.Handle(cmd.Context(), queries.FindFreeSlotsQuery{
			UserID:      app.CurrentUserID,
			Attendees:   freeAttendees,
			Window:      window,
			Limit:       freeLimit,
			MinDuration: time.Duration(freeMinDuration) * time.Minute,
			ExcludeSelf: freeExcludeSelf,
		})
		if err != nil {
			return fmt.Errorf("failed to find free slots: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			type slot struct {
				Start       time.Time `json:"start"`
				End         time.Time `json:"end"`
				DurationMin int       `json:"duration_min"`
			}
			slots := make([]slot, 0, len(result.Free))
			for _, iv := range result.Free {
				slots = append(slots, slot{
					Start:       iv.Start().In(loc),
					End:         iv.End().In(loc),
					DurationMin: int(iv.Duration().Minutes()),
				})
			}
			return printJSON(out, map[string]any{
				"attendees":    result.Attendees,
				"window_start": result.Window.Start.In(loc),
				"window_end":   result.Window.End.In(loc),
				"busy_count":   result.Busy.Len(),
				"free":         slots,
			})
		}

		fmt.Fprintf(out, "Free time for %s\n", strings.Join(result.Attendees, ", "))
		fmt.Fprintln(out, strings.Repeat("-", 50))
		fmt.Fprintf(out, "Window: %s\n\n", formatSlot(result.Window.Start.In(loc), result.Window.End.In(loc)))
		if len(result.Free) == 0 {
			fmt.Fprintln(out, "No free slots in this window.")
			return nil
		}
		for i, iv := range result.Free {
			fmt.Fprintf(out, "  %d. %s (%s)\n", i+1, formatSlot(iv.Start().In(loc), iv.End().In(loc)), formatDuration(iv.Duration()))
		}
		return nil
	},
}

func init() {
	freeCmd.Flags().StringSliceVarP(&freeAttendees, "attendee", "a", nil, "attendee calendar (repeatable)")
	freeWindow.register(freeCmd)
	freeCmd.Flags().IntVarP(&freeLimit, "limit", "n", 10, "maximum slots to print (0 for all)")
	freeCmd.Flags().IntVar(&freeMinDuration, "min", 0, "minimum slot length in minutes")
	freeCmd.Flags().BoolVar(&freeExcludeSelf, "exclude-self", false, "leave your own calendar out")
}
