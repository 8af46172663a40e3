package domain

import (
	"fmt"
	"time"
)

// SearchWindow bounds the range scanned for free time. A window with
// Start >= End is degenerate and yields no slots.
type SearchWindow struct {
	Start time.Time
	End   time.Time
}

// NewSearchWindow normalizes both bounds to UTC.
func NewSearchWindow(start, end time.Time) SearchWindow {
	return SearchWindow{Start: start.UTC(), End: end.UTC()}
}

// WindowFromNow returns [now, now + days).
func WindowFromNow(now time.Time, days int) SearchWindow {
	return NewSearchWindow(now, now.AddDate(0, 0, days))
}

// IsDegenerate reports whether the window contains no instants.
func (w SearchWindow) IsDegenerate() bool {
	return !w.Start.Before(w.End)
}

// ClampStart moves the start forward to now so no slot is offered in the past.
func (w SearchWindow) ClampStart(now time.Time) SearchWindow {
	if w.Start.Before(now) {
		w.Start = now.UTC()
	}
	return w
}

// Interval converts a non-degenerate window to an interval.
func (w SearchWindow) Interval() (Interval, error) {
	return NewInterval(w.Start, w.End)
}

func (w SearchWindow) Duration() time.Duration {
	if w.IsDegenerate() {
		return 0
	}
	return w.End.Sub(w.Start)
}

func (w SearchWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
