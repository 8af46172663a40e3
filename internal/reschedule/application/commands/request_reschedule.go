package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ErrEventIDRequired is returned when a request names no event.
var ErrEventIDRequired = errors.New("event id is required")

// RequestRescheduleCommand asks for candidate slots for an existing meeting.
type RequestRescheduleCommand struct {
	UserID  uuid.UUID
	EventID string
	// Attendees overrides the event's attendee list when set.
	Attendees []string
	// Window is the search range; zero means the configured horizon from now.
	Window availability.SearchWindow
}

// RequestRescheduleResult is the opened session. A session without candidates
// is already expired with reason no_slots; that is a result, not an error.
type RequestRescheduleResult struct {
	Session    *domain.Session
	Superseded *domain.Session
}

// RequestRescheduleHandler handles the RequestRescheduleCommand.
type RequestRescheduleHandler struct {
	events calendarApp.EventLookup
	slots  *queries.FindFreeSlotsHandler
	config Config
	deps   Deps
}

// NewRequestRescheduleHandler creates a new RequestRescheduleHandler.
func NewRequestRescheduleHandler(events calendarApp.EventLookup, slots *queries.FindFreeSlotsHandler, config Config, deps Deps) *RequestRescheduleHandler {
	return &RequestRescheduleHandler{
		events: events,
		slots:  slots,
		config: config.withDefaults(),
		deps:   deps.withDefaults(),
	}
}

// Handle executes the RequestRescheduleCommand.
func (h *RequestRescheduleHandler) Handle(ctx context.Context, cmd RequestRescheduleCommand) (result *RequestRescheduleResult, err error) {
	if cmd.EventID == "" {
		return nil, ErrEventIDRequired
	}

	ctx, span := observability.StartSpan(ctx, "reschedule.request", attribute.String("event_id", cmd.EventID))
	defer func() { observability.EndSpan(span, err) }()

	event, err := h.events.GetEvent(ctx, cmd.UserID, cmd.EventID)
	if err != nil {
		if errors.Is(err, calendarDomain.ErrEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("look up event %s: %w", cmd.EventID, err)
	}

	attendees := calendarDomain.NormalizeAttendees(cmd.Attendees)
	if len(attendees) == 0 {
		attendees = calendarDomain.NormalizeAttendees(event.Attendees)
	}

	free, err := h.slots.Handle(ctx, queries.FindFreeSlotsQuery{
		UserID:      cmd.UserID,
		Attendees:   attendees,
		Window:      cmd.Window,
		Limit:       h.config.CandidateLimit,
		MinDuration: h.config.MinSlotDuration,
	})
	if err != nil {
		return nil, err
	}

	session := domain.NewSession(domain.NewSessionParams{
		UserID:    cmd.UserID,
		EventID:   cmd.EventID,
		Attendees: attendees,
		Window:    free.Window,
		Slots:     free.Free,
		TTL:       h.config.SessionTTL,
		Now:       h.deps.Clock.Now(),
	})

	superseded, err := h.deps.Store.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("store reschedule session: %w", err)
	}

	h.deps.Metrics.Counter(observability.MetricSessionsOffered, 1)
	h.deps.Metrics.Histogram(observability.MetricCandidatesOffered, float64(len(session.Candidates())))
	h.deps.countClosed(session, superseded)
	h.deps.record(ctx, "request", nil, session, superseded)

	span.SetAttributes(
		attribute.String("session_id", session.ID().String()),
		attribute.Int("candidates", len(session.Candidates())),
	)
	h.deps.Logger.InfoContext(ctx, "reschedule session opened",
		"session_id", session.ID(),
		"event_id", cmd.EventID,
		"attendees", len(attendees),
		"candidates", len(session.Candidates()),
		"status", session.Status(),
	)
	return &RequestRescheduleResult{Session: session, Superseded: superseded}, nil
}
