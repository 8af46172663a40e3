package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInterval   = errors.New("interval start must be before end")
	ErrIntervalsDisjoint = errors.New("intervals neither overlap nor touch")
)

// Interval is a half-open span of time [start, end).
type Interval struct {
	start time.Time
	end   time.Time
}

// NewInterval creates an interval, rejecting empty or inverted spans.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{start: start.UTC(), end: end.UTC()}, nil
}

// MustInterval is NewInterval for literals known to be valid.
func MustInterval(start, end time.Time) Interval {
	iv, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) Start() time.Time        { return i.start }
func (i Interval) End() time.Time          { return i.end }
func (i Interval) Duration() time.Duration { return i.end.Sub(i.start) }

// IsZero reports whether the interval was never constructed.
func (i Interval) IsZero() bool {
	return i.start.IsZero() && i.end.IsZero()
}

// Valid reports whether the interval satisfies start < end.
func (i Interval) Valid() bool {
	return i.start.Before(i.end)
}

// Overlaps reports whether the two intervals share at least one instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.start.Before(other.end) && other.start.Before(i.end)
}

// Adjacent reports whether one interval ends exactly where the other starts.
func (i Interval) Adjacent(other Interval) bool {
	return i.end.Equal(other.start) || other.end.Equal(i.start)
}

// Contains reports whether t lies inside [start, end).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.start) && t.Before(i.end)
}

// Merge returns the span covering both intervals. They must overlap or touch.
func (i Interval) Merge(other Interval) (Interval, error) {
	if !i.Overlaps(other) && !i.Adjacent(other) {
		return Interval{}, ErrIntervalsDisjoint
	}
	merged := Interval{start: i.start, end: i.end}
	if other.start.Before(merged.start) {
		merged.start = other.start
	}
	if other.end.After(merged.end) {
		merged.end = other.end
	}
	return merged, nil
}

// Clip restricts the interval to the window. ok is false when nothing remains.
func (i Interval) Clip(window SearchWindow) (Interval, bool) {
	start, end := i.start, i.end
	if start.Before(window.Start) {
		start = window.Start
	}
	if end.After(window.End) {
		end = window.End
	}
	if !start.Before(end) {
		return Interval{}, false
	}
	return Interval{start: start, end: end}, true
}

// Compare orders intervals by start, then by end.
func (i Interval) Compare(other Interval) int {
	if c := i.start.Compare(other.start); c != 0 {
		return c
	}
	return i.end.Compare(other.end)
}

// Equal reports whether both bounds are the same instants.
func (i Interval) Equal(other Interval) bool {
	return i.start.Equal(other.start) && i.end.Equal(other.end)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.start.Format(time.RFC3339), i.end.Format(time.RFC3339))
}

// In returns a copy with both bounds expressed in loc, for display.
func (i Interval) In(loc *time.Location) Interval {
	return Interval{start: i.start.In(loc), end: i.end.In(loc)}
}
