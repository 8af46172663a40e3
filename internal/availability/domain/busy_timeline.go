package domain

import (
	"slices"
	"time"
)

// BusyTimeline is a sorted list of busy intervals that neither overlap nor
// touch. Only MergeBusy builds one.
type BusyTimeline struct {
	intervals []Interval
}

// MergeBusy unions busy sets from any number of attendees into a timeline.
// Zero-value and inverted intervals are dropped.
func MergeBusy(sets ...[]Interval) BusyTimeline {
	total := 0
	for _, set := range sets {
		total += len(set)
	}
	all := make([]Interval, 0, total)
	for _, set := range sets {
		for _, iv := range set {
			if iv.Valid() {
				all = append(all, iv)
			}
		}
	}
	if len(all) == 0 {
		return BusyTimeline{}
	}

	slices.SortFunc(all, Interval.Compare)

	merged := make([]Interval, 0, len(all))
	current := all[0]
	for _, next := range all[1:] {
		if !next.start.After(current.end) {
			if next.end.After(current.end) {
				current.end = next.end
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	merged = append(merged, current)

	return BusyTimeline{intervals: merged}
}

// Intervals returns a copy of the merged intervals.
func (t BusyTimeline) Intervals() []Interval {
	return slices.Clone(t.intervals)
}

func (t BusyTimeline) Len() int      { return len(t.intervals) }
func (t BusyTimeline) IsEmpty() bool { return len(t.intervals) == 0 }

// Merge unions two timelines.
func (t BusyTimeline) Merge(other BusyTimeline) BusyTimeline {
	return MergeBusy(t.intervals, other.intervals)
}

// BusyAt reports whether the instant falls inside a busy interval.
func (t BusyTimeline) BusyAt(instant time.Time) bool {
	idx, _ := slices.BinarySearchFunc(t.intervals, instant, func(iv Interval, target time.Time) int {
		if !iv.end.After(target) {
			return -1
		}
		if iv.start.After(target) {
			return 1
		}
		return 0
	})
	return idx < len(t.intervals) && t.intervals[idx].Contains(instant)
}

// BusyWithin sums the busy time inside the window.
func (t BusyTimeline) BusyWithin(window SearchWindow) time.Duration {
	var total time.Duration
	for _, iv := range t.intervals {
		if clipped, ok := iv.Clip(window); ok {
			total += clipped.Duration()
		}
	}
	return total
}
