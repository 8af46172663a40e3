package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RescheduleAttempt captures the outcome of a selection for auditing.
type RescheduleAttempt struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	UserID        uuid.UUID
	EventID       string
	Attendees     []string
	CandidateIdx  int
	AttemptedAt   time.Time
	NewStart      *time.Time
	NewEnd        *time.Time
	Success       bool
	FailureReason string
}

// NewRescheduleAttempt records a selection of index in session.
func NewRescheduleAttempt(session *Session, index int, at time.Time) RescheduleAttempt {
	return RescheduleAttempt{
		ID:           uuid.New(),
		SessionID:    session.ID(),
		UserID:       session.UserID(),
		EventID:      session.EventID(),
		Attendees:    session.Attendees(),
		CandidateIdx: index,
		AttemptedAt:  at.UTC(),
	}
}

// Succeeded marks the attempt as written with the given slot.
func (a *RescheduleAttempt) Succeeded(c Candidate) {
	start, end := c.Slot.Start(), c.Slot.End()
	a.NewStart = &start
	a.NewEnd = &end
	a.Success = true
	a.FailureReason = ""
}

// Failed marks the attempt as failed.
func (a *RescheduleAttempt) Failed(err error) {
	a.Success = false
	if err != nil {
		a.FailureReason = err.Error()
	}
}

// AttemptRepository persists reschedule attempts.
type AttemptRepository interface {
	// Create stores a new attempt.
	Create(ctx context.Context, attempt RescheduleAttempt) error
	// ListByUser returns the user's attempts, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]RescheduleAttempt, error)
	// ListBySession returns the attempts recorded for one session.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]RescheduleAttempt, error)
}
