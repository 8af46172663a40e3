package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

var (
	// ErrEventNotFound is returned when the meeting does not exist or was deleted.
	ErrEventNotFound = errors.New("calendar event not found")
	// ErrUnknownProvider is returned for provider names nothing is registered for.
	ErrUnknownProvider = errors.New("unknown calendar provider")
	// ErrReadOnlyProvider is returned when a write is attempted on a feed-only provider.
	ErrReadOnlyProvider = errors.New("calendar provider is read-only")
)

// Event is the subset of a calendar event the rescheduler needs.
type Event struct {
	ID        string
	Summary   string
	Attendees []string
	Start     time.Time
	End       time.Time
}

// AttendeeEmails returns the normalized, de-duplicated attendee addresses.
func (e *Event) AttendeeEmails() []string {
	return NormalizeAttendees(e.Attendees)
}

// NormalizeAttendees lower-cases, trims, strips a mailto: prefix and removes
// duplicates and blanks while keeping first-seen order.
func NormalizeAttendees(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		if len(a) >= 7 && strings.EqualFold(a[:7], "mailto:") {
			a = a[7:]
		}
		a = strings.ToLower(a)
		if a == "" || slices.Contains(out, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}
