package domain

import (
	"fmt"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	sharedDomain "github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/google/uuid"
)

// SlotSnapshot is the storable form of a candidate slot.
type SlotSnapshot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SessionSnapshot is the storable form of a session.
type SessionSnapshot struct {
	ID          uuid.UUID      `json:"id"`
	Version     int            `json:"version"`
	UserID      uuid.UUID      `json:"user_id"`
	EventID     string         `json:"event_id"`
	Attendees   []string       `json:"attendees"`
	WindowStart time.Time      `json:"window_start"`
	WindowEnd   time.Time      `json:"window_end"`
	Candidates  []SlotSnapshot `json:"candidates"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
	ChosenIndex int            `json:"chosen_index"`
	CloseReason string         `json:"close_reason,omitempty"`
}

// Snapshot captures the session state. Pending domain events are not included.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:          s.ID(),
		Version:     s.Version(),
		UserID:      s.userID,
		EventID:     s.eventID,
		Attendees:   s.Attendees(),
		WindowStart: s.window.Start,
		WindowEnd:   s.window.End,
		Candidates:  make([]SlotSnapshot, len(s.candidates)),
		Status:      string(s.status),
		CreatedAt:   s.CreatedAt(),
		UpdatedAt:   s.UpdatedAt(),
		ExpiresAt:   s.expiresAt,
		ClosedAt:    s.closedAt,
		ChosenIndex: s.chosenIndex,
		CloseReason: string(s.closeReason),
	}
	for i, c := range s.candidates {
		snap.Candidates[i] = SlotSnapshot{Start: c.Slot.Start(), End: c.Slot.End()}
	}
	return snap
}

// RehydrateSession rebuilds a session from a snapshot.
func RehydrateSession(snap SessionSnapshot) (*Session, error) {
	status, err := ParseStatus(snap.Status)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, len(snap.Candidates))
	for i, c := range snap.Candidates {
		slot, err := availability.NewInterval(c.Start, c.End)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		candidates[i] = Candidate{Index: i, Slot: slot}
	}
	if snap.ChosenIndex >= len(candidates) {
		return nil, fmt.Errorf("chosen index %d: %w", snap.ChosenIndex, ErrInvalidSelection)
	}

	entity := sharedDomain.RehydrateBaseEntity(snap.ID, snap.CreatedAt, snap.UpdatedAt)
	return &Session{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity, snap.Version),
		userID:            snap.UserID,
		eventID:           snap.EventID,
		attendees:         snap.Attendees,
		window:            availability.NewSearchWindow(snap.WindowStart, snap.WindowEnd),
		candidates:        candidates,
		status:            status,
		expiresAt:         snap.ExpiresAt,
		closedAt:          snap.ClosedAt,
		chosenIndex:       snap.ChosenIndex,
		closeReason:       CloseReason(snap.CloseReason),
	}, nil
}
