// Package google reads free/busy data from and moves events in Google Calendar.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// DefaultCalendarID is the authenticated user's main calendar.
	DefaultCalendarID = "primary"

	// freeBusyMaxItems is the API's per-request calendar limit.
	freeBusyMaxItems = 50
	requestTimeout   = 15 * time.Second
)

// DefaultScopes grants read access to free/busy data and write access to events.
var DefaultScopes = []string{calendar.CalendarScope}

// ErrOAuthNotConfigured is returned when the provider has no token source.
var ErrOAuthNotConfigured = errors.New("google oauth not configured")

// Provider implements calendarApp.Provider and calendarApp.BatchBusyReader.
type Provider struct {
	tokens      calendarApp.TokenSourceProvider
	logger      *slog.Logger
	endpoint    string
	calendarID  string
	sendUpdates string
}

// NewProvider creates a Google Calendar provider.
func NewProvider(tokens calendarApp.TokenSourceProvider, logger *slog.Logger) *Provider {
	return NewProviderWithEndpoint(tokens, logger, "")
}

// NewProviderWithEndpoint creates a provider talking to a custom API endpoint.
// The endpoint must end with a slash.
func NewProviderWithEndpoint(tokens calendarApp.TokenSourceProvider, logger *slog.Logger, endpoint string) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		tokens:      tokens,
		logger:      logger,
		endpoint:    endpoint,
		calendarID:  DefaultCalendarID,
		sendUpdates: "all",
	}
}

// WithCalendarID sets the calendar that holds the user's meetings.
func (p *Provider) WithCalendarID(calendarID string) *Provider {
	if calendarID != "" {
		p.calendarID = calendarID
	}
	return p
}

// WithSendUpdates sets who is notified when an event moves: all, externalOnly or none.
func (p *Provider) WithSendUpdates(mode string) *Provider {
	if mode != "" {
		p.sendUpdates = mode
	}
	return p
}

func (p *Provider) service(ctx context.Context, userID uuid.UUID) (*calendar.Service, error) {
	if p.tokens == nil {
		return nil, ErrOAuthNotConfigured
	}
	source, err := p.tokens.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Timeout: requestTimeout,
		Transport: &oauth2.Transport{
			Base:   http.DefaultTransport,
			Source: source,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

func (p *Provider) calendarFor(attendee string) string {
	if attendee == calendarApp.Self {
		return p.calendarID
	}
	return attendee
}

// BusyIntervals returns one attendee's busy periods.
func (p *Provider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error) {
	res, err := p.BatchBusyIntervals(ctx, userID, []string{attendee}, window)
	if err != nil {
		return nil, err
	}
	return res[attendee], nil
}

// BatchBusyIntervals queries free/busy for all attendees, fifty calendars per
// request. Calendars the API cannot read (other domains, unknown addresses)
// are logged and treated as free.
func (p *Provider) BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (out map[string][]availability.Interval, err error) {
	ctx, span := observability.StartClientSpan(ctx, "google", "freebusy", attribute.Int("attendees", len(attendees)))
	defer func() { observability.EndSpan(span, err) }()

	svc, err := p.service(ctx, userID)
	if err != nil {
		return nil, err
	}

	out = make(map[string][]availability.Interval, len(attendees))
	for chunk := range slices.Chunk(attendees, freeBusyMaxItems) {
		byCalendar := make(map[string]string, len(chunk))
		items := make([]*calendar.FreeBusyRequestItem, 0, len(chunk))
		for _, attendee := range chunk {
			id := p.calendarFor(attendee)
			byCalendar[strings.ToLower(id)] = attendee
			items = append(items, &calendar.FreeBusyRequestItem{Id: id})
		}

		resp, err := svc.Freebusy.Query(&calendar.FreeBusyRequest{
			TimeMin:  window.Start.UTC().Format(time.RFC3339),
			TimeMax:  window.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
			Items:    items,
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("google freebusy query: %w", err)
		}

		for id, cal := range resp.Calendars {
			attendee, ok := byCalendar[strings.ToLower(id)]
			if !ok {
				continue
			}
			for _, e := range cal.Errors {
				p.logger.Warn("google freebusy calendar unavailable",
					"attendee", attendee, "reason", e.Reason, "domain", e.Domain)
			}
			raw := make([]calendarApp.RawInterval, 0, len(cal.Busy))
			for _, b := range cal.Busy {
				if b == nil {
					continue
				}
				raw = append(raw, calendarApp.RawInterval{Start: b.Start, End: b.End})
			}
			out[attendee] = append(out[attendee],
				calendarApp.ParseBusy(p.logger, attendee, time.RFC3339, time.UTC, raw)...)
		}
	}
	return out, nil
}

// GetEvent loads an event from the configured calendar.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (event *domain.Event, err error) {
	ctx, span := observability.StartClientSpan(ctx, "google", "events.get", attribute.String("event_id", eventID))
	defer func() { observability.EndSpan(span, err) }()

	svc, err := p.service(ctx, userID)
	if err != nil {
		return nil, err
	}
	ev, err := svc.Events.Get(p.calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, mapError("get event", eventID, err)
	}
	if ev.Status == "cancelled" {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}

	event = &domain.Event{ID: ev.Id, Summary: ev.Summary}
	for _, a := range ev.Attendees {
		if a == nil || a.Self || a.Email == "" {
			continue
		}
		event.Attendees = append(event.Attendees, a.Email)
	}
	event.Attendees = domain.NormalizeAttendees(event.Attendees)
	event.Start = parseEventTime(ev.Start)
	event.End = parseEventTime(ev.End)
	return event, nil
}

// UpdateEventTime moves the event to slot, written in UTC.
func (p *Provider) UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) (err error) {
	ctx, span := observability.StartClientSpan(ctx, "google", "events.patch", attribute.String("event_id", eventID))
	defer func() { observability.EndSpan(span, err) }()

	svc, err := p.service(ctx, userID)
	if err != nil {
		return err
	}
	patch := &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: slot.Start().UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:   &calendar.EventDateTime{DateTime: slot.End().UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	if _, err := svc.Events.Patch(p.calendarID, eventID, patch).SendUpdates(p.sendUpdates).Context(ctx).Do(); err != nil {
		return mapError("patch event", eventID, err)
	}
	p.logger.Info("google event moved", "event_id", eventID, "slot", slot.String())
	return nil
}

func mapError(op, eventID string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return fmt.Errorf("google %s: %w", op, err)
}

func parseEventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.UTC()
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}
