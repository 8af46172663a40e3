package commands

import (
	"context"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
)

// CancelSessionCommand closes an open session on the user's behalf.
type CancelSessionCommand struct {
	// UserID, when set, must own the session.
	UserID    uuid.UUID
	SessionID uuid.UUID
}

// CancelSessionHandler handles the CancelSessionCommand.
type CancelSessionHandler struct {
	deps Deps
}

// NewCancelSessionHandler creates a new CancelSessionHandler.
func NewCancelSessionHandler(deps Deps) *CancelSessionHandler {
	return &CancelSessionHandler{deps: deps.withDefaults()}
}

// Handle executes the CancelSessionCommand. Cancelling a closed session
// returns ErrSessionClosed and the session unchanged.
func (h *CancelSessionHandler) Handle(ctx context.Context, cmd CancelSessionCommand) (*domain.Session, error) {
	if cmd.UserID != uuid.Nil {
		owned, err := h.deps.Store.Get(ctx, cmd.SessionID)
		if err != nil {
			return nil, err
		}
		if owned.UserID() != cmd.UserID {
			return nil, domain.ErrSessionNotFound
		}
	}

	session, err := h.deps.Store.Cancel(ctx, cmd.SessionID, domain.ReasonUser)
	if err != nil {
		return session, err
	}

	h.deps.countClosed(session)
	h.deps.record(ctx, "cancel", nil, session)
	h.deps.Logger.InfoContext(ctx, "reschedule session cancelled", "session_id", cmd.SessionID)
	return session, nil
}
