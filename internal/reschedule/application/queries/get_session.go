package queries

import (
	"context"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
)

// GetSessionQuery fetches one session.
type GetSessionQuery struct {
	// UserID, when set, must own the session.
	UserID    uuid.UUID
	SessionID uuid.UUID
}

// GetSessionHandler handles the GetSessionQuery.
type GetSessionHandler struct {
	store domain.SessionStore
}

// NewGetSessionHandler creates a new GetSessionHandler.
func NewGetSessionHandler(store domain.SessionStore) *GetSessionHandler {
	return &GetSessionHandler{store: store}
}

// Handle executes the GetSessionQuery.
func (h *GetSessionHandler) Handle(ctx context.Context, query GetSessionQuery) (*SessionDTO, error) {
	session, err := h.store.Get(ctx, query.SessionID)
	if err != nil {
		return nil, err
	}
	if query.UserID != uuid.Nil && session.UserID() != query.UserID {
		return nil, domain.ErrSessionNotFound
	}
	dto := ToSessionDTO(session)
	return &dto, nil
}
