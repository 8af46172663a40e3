package queries

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
)

// RescheduleAttemptDTO is a data transfer object for reschedule attempts.
type RescheduleAttemptDTO struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	EventID       string     `json:"event_id"`
	Attendees     []string   `json:"attendees"`
	CandidateIdx  int        `json:"candidate_index"`
	AttemptedAt   time.Time  `json:"attempted_at"`
	NewStart      *time.Time `json:"new_start,omitempty"`
	NewEnd        *time.Time `json:"new_end,omitempty"`
	Success       bool       `json:"success"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

// ListAttemptsQuery lists a session's attempts when SessionID is set and the
// user's most recent attempts otherwise.
type ListAttemptsQuery struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Limit     int
}

// ListAttemptsHandler handles the ListAttemptsQuery.
type ListAttemptsHandler struct {
	attemptRepo domain.AttemptRepository
}

// NewListAttemptsHandler creates a new handler.
func NewListAttemptsHandler(attemptRepo domain.AttemptRepository) *ListAttemptsHandler {
	return &ListAttemptsHandler{attemptRepo: attemptRepo}
}

// Handle executes the ListAttemptsQuery.
func (h *ListAttemptsHandler) Handle(ctx context.Context, query ListAttemptsQuery) ([]RescheduleAttemptDTO, error) {
	if h.attemptRepo == nil {
		return nil, errors.New("reschedule attempt repository not configured")
	}

	var attempts []domain.RescheduleAttempt
	var err error
	if query.SessionID != uuid.Nil {
		attempts, err = h.attemptRepo.ListBySession(ctx, query.SessionID)
	} else {
		attempts, err = h.attemptRepo.ListByUser(ctx, query.UserID, query.Limit)
	}
	if err != nil {
		return nil, err
	}

	dtos := make([]RescheduleAttemptDTO, 0, len(attempts))
	for _, attempt := range attempts {
		if query.UserID != uuid.Nil && attempt.UserID != query.UserID {
			continue
		}
		dtos = append(dtos, RescheduleAttemptDTO{
			ID:            attempt.ID,
			SessionID:     attempt.SessionID,
			EventID:       attempt.EventID,
			Attendees:     attempt.Attendees,
			CandidateIdx:  attempt.CandidateIdx,
			AttemptedAt:   attempt.AttemptedAt,
			NewStart:      attempt.NewStart,
			NewEnd:        attempt.NewEnd,
			Success:       attempt.Success,
			FailureReason: attempt.FailureReason,
		})
	}
	return dtos, nil
}
