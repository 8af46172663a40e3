package application

import (
	"log/slog"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
)

// RawInterval is a busy period as a provider reported it, before validation.
type RawInterval struct {
	Start string
	End   string
}

// ParseBusy converts provider instants to intervals. Values that fail to
// parse with layout, or that do not form a valid interval, are logged and
// skipped so one bad entry never aborts a merge.
func ParseBusy(logger *slog.Logger, attendee, layout string, loc *time.Location, raw []RawInterval) []availability.Interval {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	out := make([]availability.Interval, 0, len(raw))
	for _, r := range raw {
		start, err := time.ParseInLocation(layout, r.Start, loc)
		if err != nil {
			logger.Warn("skipping busy interval with invalid start",
				"attendee", attendee, "value", r.Start, "error", err)
			continue
		}
		end, err := time.ParseInLocation(layout, r.End, loc)
		if err != nil {
			logger.Warn("skipping busy interval with invalid end",
				"attendee", attendee, "value", r.End, "error", err)
			continue
		}
		if interval, ok := ValidInterval(logger, attendee, start, end); ok {
			out = append(out, interval)
		}
	}
	return out
}

// ValidInterval builds a UTC interval, logging and rejecting inverted or empty ones.
func ValidInterval(logger *slog.Logger, attendee string, start, end time.Time) (availability.Interval, bool) {
	interval, err := availability.NewInterval(start.UTC(), end.UTC())
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("skipping invalid busy interval",
			"attendee", attendee, "start", start, "end", end, "error", err)
		return availability.Interval{}, false
	}
	return interval, true
}
