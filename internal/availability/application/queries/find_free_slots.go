package queries

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultWindowDays is the search horizon when the query leaves it open.
const DefaultWindowDays = 14

// ErrNoAttendees is returned when neither attendees nor the user's own
// calendar can be queried.
var ErrNoAttendees = errors.New("at least one attendee is required")

// FindFreeSlotsQuery asks for the mutually free time of a set of attendees.
type FindFreeSlotsQuery struct {
	UserID    uuid.UUID
	Attendees []string
	// Window is clamped to start no earlier than now. A zero window means
	// [now, now + WindowDays).
	Window domain.SearchWindow
	// Limit caps the result; zero or negative returns every gap.
	Limit       int
	MinDuration time.Duration
	// ExcludeSelf leaves the user's own calendar out of the busy set.
	ExcludeSelf bool
}

// FreeSlotsResult carries the merged busy timeline and the free slots.
type FreeSlotsResult struct {
	Window    domain.SearchWindow
	Attendees []string
	Busy      domain.BusyTimeline
	Free      []domain.Interval
}

// FindFreeSlotsHandler reads busy time for every attendee, merges it and
// returns the free gaps.
type FindFreeSlotsHandler struct {
	reader     calendarApp.BusyReader
	windowDays int
	now        func() time.Time
	metrics    observability.Metrics
	logger     *slog.Logger
}

// NewFindFreeSlotsHandler creates a new FindFreeSlotsHandler.
func NewFindFreeSlotsHandler(reader calendarApp.BusyReader, windowDays int, metrics observability.Metrics, logger *slog.Logger) *FindFreeSlotsHandler {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FindFreeSlotsHandler{
		reader:     reader,
		windowDays: windowDays,
		now:        func() time.Time { return time.Now().UTC() },
		metrics:    metrics,
		logger:     logger,
	}
}

// WithClock replaces the wall clock.
func (h *FindFreeSlotsHandler) WithClock(now func() time.Time) *FindFreeSlotsHandler {
	h.now = now
	return h
}

// Window returns the effective search window for a requested one.
func (h *FindFreeSlotsHandler) Window(requested domain.SearchWindow) domain.SearchWindow {
	now := h.now()
	if requested.Start.IsZero() && requested.End.IsZero() {
		return domain.WindowFromNow(now, h.windowDays)
	}
	return requested.ClampStart(now)
}

// Handle executes the FindFreeSlotsQuery.
func (h *FindFreeSlotsHandler) Handle(ctx context.Context, query FindFreeSlotsQuery) (*FreeSlotsResult, error) {
	attendees := calendarDomain.NormalizeAttendees(query.Attendees)
	if !query.ExcludeSelf && !slices.Contains(attendees, calendarApp.Self) {
		attendees = append(attendees, calendarApp.Self)
	}
	if len(attendees) == 0 {
		return nil, ErrNoAttendees
	}
	window := h.Window(query.Window)

	ctx, span := observability.StartSpan(ctx, "availability.find_free_slots",
		attribute.Int("attendees", len(attendees)),
		attribute.String("window", window.String()),
	)
	started := time.Now()

	result := &FreeSlotsResult{Window: window, Attendees: attendees, Free: []domain.Interval{}}
	if window.IsDegenerate() {
		observability.EndSpan(span, nil)
		return result, nil
	}

	busy, err := calendarApp.CollectBusy(ctx, h.reader, query.UserID, attendees, window)
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}

	sets := make([][]domain.Interval, 0, len(busy))
	for _, attendee := range attendees {
		sets = append(sets, busy[attendee])
	}
	result.Busy = domain.MergeBusy(sets...)

	limit := query.Limit
	if limit <= 0 {
		// n busy intervals leave at most n+1 gaps.
		limit = result.Busy.Len() + 1
	}
	result.Free = domain.FindFreeSlotsWithOptions(result.Busy, window, domain.SlotOptions{
		Limit:       limit,
		MinDuration: query.MinDuration,
	})

	h.metrics.Timing(observability.MetricFreeSlotSearch, time.Since(started))
	h.logger.DebugContext(ctx, "free slots resolved",
		"attendees", len(attendees),
		"busy", result.Busy.Len(),
		"free", len(result.Free),
		"window", window.String(),
	)
	span.SetAttributes(attribute.Int("free", len(result.Free)))
	observability.EndSpan(span, nil)
	return result, nil
}
