package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/reslot/internal/availability/application/queries"
)

type availabilityFreeInput struct {
	Attendees   []string `json:"attendees,omitempty"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	Days        int      `json:"days,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	MinMinutes  int      `json:"min_minutes,omitempty"`
	ExcludeSelf bool     `json:"exclude_self,omitempty"`
}

type freeSlot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin int       `json:"duration_min"`
}

type availabilityFreeOutput struct {
	Attendees   []string   `json:"attendees"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	BusyCount   int        `json:"busy_count"`
	Free        []freeSlot `json:"free"`
}

func registerAvailabilityTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("availability.free").
		Description("List time free for every attendee and the current user, earliest first").
		Handler(func(ctx context.Context, input availabilityFreeInput) (*availabilityFreeOutput, error) {
			if app == nil || app.FindFreeSlotsHandler == nil {
				return nil, errors.New("availability requires a configured calendar provider")
			}
			window, err := parseWindow(input.From, input.To, input.Days, time.Now())
			if err != nil {
				return nil, err
			}

			result, err := app.FindFreeSlotsHandler.Handle(ctx, queries.FindFreeSlotsQuery{
				UserID:      app.CurrentUserID,
				Attendees:   input.Attendees,
				Window:      window,
				Limit:       input.Limit,
				MinDuration: time.Duration(input.MinMinutes) * time.Minute,
				ExcludeSelf: input.ExcludeSelf,
			})
			if err != nil {
				return nil, err
			}

			out := &availabilityFreeOutput{
				Attendees:   result.Attendees,
				WindowStart: result.Window.Start,
				WindowEnd:   result.Window.End,
				BusyCount:   result.Busy.Len(),
				Free:        make([]freeSlot, 0, len(result.Free)),
			}
			for _, iv := range result.Free {
				out.Free = append(out.Free, freeSlot{
					Start:       iv.Start(),
					End:         iv.End(),
					DurationMin: int(iv.Duration().Minutes()),
				})
			}
			return out, nil
		})

	return nil
}
