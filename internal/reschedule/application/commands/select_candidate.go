package commands

import (
	"context"
	"errors"
	"fmt"

	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// CalendarWriter re-checks and moves the meeting being rescheduled.
type CalendarWriter interface {
	calendarApp.EventLookup
	calendarApp.EventWriter
}

// SelectCandidateCommand picks one offered slot.
type SelectCandidateCommand struct {
	// UserID, when set, must own the session.
	UserID    uuid.UUID
	SessionID uuid.UUID
	Index     int
}

// SelectCandidateResult is the committed session and the slot written.
type SelectCandidateResult struct {
	Session   *domain.Session
	Candidate domain.Candidate
}

// SelectCandidateHandler handles the SelectCandidateCommand. The calendar
// write happens while the store holds the session, and the session commits
// only once the write succeeded.
type SelectCandidateHandler struct {
	calendar CalendarWriter
	deps     Deps
}

// NewSelectCandidateHandler creates a new SelectCandidateHandler.
func NewSelectCandidateHandler(calendar CalendarWriter, deps Deps) *SelectCandidateHandler {
	return &SelectCandidateHandler{calendar: calendar, deps: deps.withDefaults()}
}

// Handle executes the SelectCandidateCommand.
func (h *SelectCandidateHandler) Handle(ctx context.Context, cmd SelectCandidateCommand) (result *SelectCandidateResult, err error) {
	ctx, span := observability.StartSpan(ctx, "reschedule.select",
		attribute.String("session_id", cmd.SessionID.String()),
		attribute.Int("index", cmd.Index),
	)
	defer func() { observability.EndSpan(span, err) }()

	if cmd.UserID != uuid.Nil {
		owned, err := h.deps.Store.Get(ctx, cmd.SessionID)
		if err != nil {
			return nil, err
		}
		if owned.UserID() != cmd.UserID {
			return nil, domain.ErrSessionNotFound
		}
	}

	session, candidate, err := h.deps.Store.Select(ctx, cmd.SessionID, cmd.Index, h.commit)
	h.deps.Metrics.Counter(observability.MetricSelections, 1, observability.T("outcome", selectOutcome(err)))
	if session == nil {
		return nil, err
	}

	attempt := domain.NewRescheduleAttempt(session, cmd.Index, h.deps.Clock.Now())
	if err != nil {
		attempt.Failed(err)
	} else {
		attempt.Succeeded(candidate)
	}
	h.deps.countClosed(session)
	h.deps.record(ctx, "select", &attempt, session)

	if err != nil {
		h.deps.Logger.WarnContext(ctx, "reschedule selection failed",
			"session_id", cmd.SessionID,
			"index", cmd.Index,
			"status", session.Status(),
			"error", err,
		)
		return nil, err
	}

	h.deps.Logger.InfoContext(ctx, "reschedule session committed",
		"session_id", cmd.SessionID,
		"event_id", session.EventID(),
		"slot", candidate.Slot.String(),
	)
	return &SelectCandidateResult{Session: session, Candidate: candidate}, nil
}

// commit verifies the meeting still exists and writes the new time.
func (h *SelectCandidateHandler) commit(ctx context.Context, session *domain.Session, candidate domain.Candidate) error {
	if _, err := h.calendar.GetEvent(ctx, session.UserID(), session.EventID()); err != nil {
		return eventError(session.EventID(), err)
	}
	if err := h.calendar.UpdateEventTime(ctx, session.UserID(), session.EventID(), candidate.Slot); err != nil {
		return eventError(session.EventID(), err)
	}
	return nil
}

func eventError(eventID string, err error) error {
	if errors.Is(err, calendarDomain.ErrEventNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrEventGone, err)
	}
	return fmt.Errorf("update event %s: %w", eventID, err)
}

func selectOutcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidSelection):
		return "invalid"
	case errors.Is(err, domain.ErrSessionClosed):
		return "closed"
	case errors.Is(err, domain.ErrEventGone):
		return "event_gone"
	default:
		return "write_failed"
	}
}
