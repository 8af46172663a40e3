package domain

import "time"

// SlotOptions tunes the free-slot search.
type SlotOptions struct {
	// Limit caps the number of slots returned. Zero or negative returns nothing.
	Limit int
	// MinDuration skips gaps shorter than this. Zero accepts any non-empty gap.
	MinDuration time.Duration
}

// FindFreeSlots returns up to limit free gaps of the timeline inside the window,
// earliest first. Busy intervals that straddle a window bound are clipped to it.
func FindFreeSlots(timeline BusyTimeline, window SearchWindow, limit int) []Interval {
	return FindFreeSlotsWithOptions(timeline, window, SlotOptions{Limit: limit})
}

// FindFreeSlotsWithOptions is FindFreeSlots with a minimum slot length.
func FindFreeSlotsWithOptions(timeline BusyTimeline, window SearchWindow, opts SlotOptions) []Interval {
	slots := make([]Interval, 0)
	if opts.Limit <= 0 || window.IsDegenerate() {
		return slots
	}

	emit := func(start, end time.Time) bool {
		if start.Before(end) && end.Sub(start) >= opts.MinDuration {
			slots = append(slots, Interval{start: start, end: end})
		}
		return len(slots) >= opts.Limit
	}

	cursor := window.Start
	for _, busy := range timeline.intervals {
		if !busy.end.After(cursor) {
			continue
		}
		if !busy.start.Before(window.End) {
			break
		}
		if cursor.Before(busy.start) {
			if emit(cursor, busy.start) {
				return slots
			}
		}
		if busy.end.After(cursor) {
			cursor = busy.end
		}
		if !cursor.Before(window.End) {
			return slots
		}
	}

	emit(cursor, window.End)
	return slots
}

// Complement returns every free gap in the window, with no limit.
func Complement(timeline BusyTimeline, window SearchWindow) []Interval {
	return FindFreeSlotsWithOptions(timeline, window, SlotOptions{Limit: timeline.Len() + 1})
}
