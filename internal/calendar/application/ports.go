package application

import (
	"context"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Self names the requesting user's own calendar in attendee lists.
const Self = "primary"

// TokenSourceProvider yields OAuth2 credentials for a user.
type TokenSourceProvider interface {
	TokenSource(ctx context.Context, userID uuid.UUID) (oauth2.TokenSource, error)
}

// BusyReader returns the busy intervals of one attendee inside a window.
type BusyReader interface {
	BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error)
}

// BatchBusyReader answers for several attendees in one provider round trip.
// Attendees missing from the result are treated as free.
type BatchBusyReader interface {
	BusyReader
	BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (map[string][]availability.Interval, error)
}

// EventWriter moves an existing event. It returns domain.ErrEventNotFound when
// the event was deleted.
type EventWriter interface {
	UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) error
}

// EventLookup fetches an event. It returns domain.ErrEventNotFound when the
// event does not exist.
type EventLookup interface {
	GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*domain.Event, error)
}

// Provider is a full calendar backend.
type Provider interface {
	BusyReader
	EventWriter
	EventLookup
}
