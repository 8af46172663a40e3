package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "RescheduleSession"

	RoutingKeySessionOffered   = "reschedule.session.offered"
	RoutingKeySessionCommitted = "reschedule.session.committed"
	RoutingKeySessionExpired   = "reschedule.session.expired"
	RoutingKeySessionCancelled = "reschedule.session.cancelled"
)

// SessionOffered is emitted when candidates are offered for a meeting.
type SessionOffered struct {
	sharedDomain.BaseEvent
	SessionID       uuid.UUID `json:"session_id"`
	CalendarEventID string    `json:"event_id"`
	Attendees       []string  `json:"attendees"`
	Candidates      int       `json:"candidates"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func NewSessionOffered(s *Session, at time.Time) *SessionOffered {
	return &SessionOffered{
		BaseEvent:       sharedDomain.NewBaseEventAt(s.ID(), AggregateType, RoutingKeySessionOffered, at),
		SessionID:       s.ID(),
		CalendarEventID: s.eventID,
		Attendees:       s.Attendees(),
		Candidates:      len(s.candidates),
		ExpiresAt:       s.expiresAt,
	}
}

// SessionCommitted is emitted once the new meeting time was written.
type SessionCommitted struct {
	sharedDomain.BaseEvent
	SessionID       uuid.UUID `json:"session_id"`
	CalendarEventID string    `json:"event_id"`
	Index           int       `json:"index"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

func NewSessionCommitted(sessionID uuid.UUID, eventID string, c Candidate, at time.Time) *SessionCommitted {
	return &SessionCommitted{
		BaseEvent:       sharedDomain.NewBaseEventAt(sessionID, AggregateType, RoutingKeySessionCommitted, at),
		SessionID:       sessionID,
		CalendarEventID: eventID,
		Index:           c.Index,
		StartTime:       c.Slot.Start(),
		EndTime:         c.Slot.End(),
	}
}

// SessionExpired is emitted when a session times out, has nothing to offer,
// or its meeting disappeared.
type SessionExpired struct {
	sharedDomain.BaseEvent
	SessionID       uuid.UUID `json:"session_id"`
	CalendarEventID string    `json:"event_id"`
	Reason          string    `json:"reason"`
}

func NewSessionExpired(sessionID uuid.UUID, eventID string, reason CloseReason, at time.Time) *SessionExpired {
	return &SessionExpired{
		BaseEvent:       sharedDomain.NewBaseEventAt(sessionID, AggregateType, RoutingKeySessionExpired, at),
		SessionID:       sessionID,
		CalendarEventID: eventID,
		Reason:          string(reason),
	}
}

// SessionCancelled is emitted on user cancellation or supersession.
type SessionCancelled struct {
	sharedDomain.BaseEvent
	SessionID       uuid.UUID `json:"session_id"`
	CalendarEventID string    `json:"event_id"`
	Reason          string    `json:"reason"`
}

func NewSessionCancelled(sessionID uuid.UUID, eventID string, reason CloseReason, at time.Time) *SessionCancelled {
	return &SessionCancelled{
		BaseEvent:       sharedDomain.NewBaseEventAt(sessionID, AggregateType, RoutingKeySessionCancelled, at),
		SessionID:       sessionID,
		CalendarEventID: eventID,
		Reason:          string(reason),
	}
}
