package domain

import (
	"fmt"
	"slices"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/google/uuid"
)

// DefaultCandidateLimit is the number of slots offered per session.
const DefaultCandidateLimit = 3

// Status is the lifecycle state of a session.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCommitted Status = "committed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusExpired || s == StatusCancelled
}

// ParseStatus validates a stored status value.
func ParseStatus(value string) (Status, error) {
	switch s := Status(value); s {
	case StatusOpen, StatusCommitted, StatusExpired, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("unknown session status %q", value)
	}
}

// CloseReason records why a session left the open state.
type CloseReason string

const (
	ReasonNone       CloseReason = ""
	ReasonSelected   CloseReason = "selected"
	ReasonNoSlots    CloseReason = "no_slots"
	ReasonTTL        CloseReason = "ttl"
	ReasonEventGone  CloseReason = "event_gone"
	ReasonUser       CloseReason = "user"
	ReasonSuperseded CloseReason = "superseded"
)

// Candidate is one offered slot; Index is its zero-based rank.
type Candidate struct {
	Index int
	Slot  availability.Interval
}

// NewSessionParams carries everything needed to open a session.
type NewSessionParams struct {
	UserID    uuid.UUID
	EventID   string
	Attendees []string
	Window    availability.SearchWindow
	Slots     []availability.Interval
	TTL       time.Duration
	Now       time.Time
}

// Session is the interactive offer of candidate slots for one meeting.
type Session struct {
	sharedDomain.BaseAggregateRoot
	userID      uuid.UUID
	eventID     string
	attendees   []string
	window      availability.SearchWindow
	candidates  []Candidate
	status      Status
	expiresAt   time.Time
	closedAt    *time.Time
	chosenIndex int
	closeReason CloseReason
}

// NewSession opens a session offering the given slots in rank order. With no
// slots the session starts expired; that is a valid outcome, not an error.
func NewSession(p NewSessionParams) *Session {
	now := p.Now.UTC()
	s := &Session{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRootAt(now),
		userID:            p.UserID,
		eventID:           p.EventID,
		attendees:         slices.Clone(p.Attendees),
		window:            p.Window,
		candidates:        make([]Candidate, len(p.Slots)),
		status:            StatusOpen,
		expiresAt:         now.Add(p.TTL),
		chosenIndex:       -1,
	}
	for i, slot := range p.Slots {
		s.candidates[i] = Candidate{Index: i, Slot: slot}
	}

	s.AddDomainEvent(NewSessionOffered(s, now))
	if len(s.candidates) == 0 {
		s.close(StatusExpired, ReasonNoSlots, now)
		s.AddDomainEvent(NewSessionExpired(s.ID(), s.eventID, ReasonNoSlots, now))
	}
	return s
}

func (s *Session) UserID() uuid.UUID                 { return s.userID }
func (s *Session) EventID() string                   { return s.eventID }
func (s *Session) Attendees() []string               { return slices.Clone(s.attendees) }
func (s *Session) Window() availability.SearchWindow { return s.window }
func (s *Session) Candidates() []Candidate           { return slices.Clone(s.candidates) }
func (s *Session) Status() Status                    { return s.status }
func (s *Session) ExpiresAt() time.Time              { return s.expiresAt }
func (s *Session) ClosedAt() *time.Time              { return s.closedAt }
func (s *Session) CloseReason() CloseReason          { return s.closeReason }

// NoSlots reports whether the session was created without any candidate.
func (s *Session) NoSlots() bool { return len(s.candidates) == 0 }

// Chosen returns the committed candidate.
func (s *Session) Chosen() (Candidate, bool) {
	if s.status != StatusCommitted || s.chosenIndex < 0 {
		return Candidate{}, false
	}
	return s.candidates[s.chosenIndex], true
}

// IsOpen reports whether the session still accepts a selection at now.
func (s *Session) IsOpen(now time.Time) bool {
	return s.status == StatusOpen && now.Before(s.expiresAt)
}

// TTLElapsed reports whether an open session has outlived its TTL.
func (s *Session) TTLElapsed(now time.Time) bool {
	return s.status == StatusOpen && !now.Before(s.expiresAt)
}

// Select resolves an index to its candidate without changing state, except
// that an open session past its TTL is expired on the spot.
func (s *Session) Select(index int, now time.Time) (Candidate, error) {
	if s.status.IsTerminal() {
		return Candidate{}, ErrSessionClosed
	}
	if s.TTLElapsed(now) {
		_ = s.Expire(ReasonTTL, now)
		return Candidate{}, ErrSessionClosed
	}
	if index < 0 || index >= len(s.candidates) {
		return Candidate{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidSelection, index, len(s.candidates))
	}
	return s.candidates[index], nil
}

// Commit marks the candidate as the meeting's new time. Call it only after the
// calendar write succeeded. The TTL is not re-checked: a write that started in
// time is honored.
func (s *Session) Commit(index int, now time.Time) error {
	if s.status.IsTerminal() {
		return ErrSessionClosed
	}
	if index < 0 || index >= len(s.candidates) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidSelection, index, len(s.candidates))
	}
	s.chosenIndex = index
	s.close(StatusCommitted, ReasonSelected, now)
	s.AddDomainEvent(NewSessionCommitted(s.ID(), s.eventID, s.candidates[index], now))
	return nil
}

// Expire closes an open session because its TTL elapsed or its event vanished.
func (s *Session) Expire(reason CloseReason, now time.Time) error {
	if s.status.IsTerminal() {
		return ErrSessionClosed
	}
	s.close(StatusExpired, reason, now)
	s.AddDomainEvent(NewSessionExpired(s.ID(), s.eventID, reason, now))
	return nil
}

// Cancel closes an open session on behalf of the user or a newer request.
func (s *Session) Cancel(reason CloseReason, now time.Time) error {
	if s.status.IsTerminal() {
		return ErrSessionClosed
	}
	s.close(StatusCancelled, reason, now)
	s.AddDomainEvent(NewSessionCancelled(s.ID(), s.eventID, reason, now))
	return nil
}

// Copy returns an independent copy without pending events.
func (s *Session) Copy() *Session {
	cp := *s
	cp.ClearDomainEvents()
	return &cp
}

// Detach returns a copy that owns the pending events and clears them from s.
// Stores use it to hand events to the caller without sharing the live session.
func (s *Session) Detach() *Session {
	cp := *s
	s.ClearDomainEvents()
	return &cp
}

func (s *Session) close(status Status, reason CloseReason, now time.Time) {
	at := now.UTC()
	s.status = status
	s.closeReason = reason
	s.closedAt = &at
	s.TouchAt(at)
	s.IncrementVersion()
}
