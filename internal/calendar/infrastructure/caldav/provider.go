// Package caldav reads busy time from and moves events on CalDAV servers
// (Apple Calendar, Fastmail, Nextcloud and similar).
package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Common CalDAV server URLs
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

// ErrNoCalendar is returned when discovery finds no calendar collection.
var ErrNoCalendar = errors.New("no caldav calendars found")

// Provider implements calendarApp.Provider against one CalDAV account.
type Provider struct {
	baseURL      string
	username     string
	password     string // App-specific password for Apple
	calendarPath string // Specific calendar path, or empty for discovery
	attendees    map[string]string
	logger       *slog.Logger
	now          func() time.Time
}

// NewProvider creates a CalDAV provider.
func NewProvider(baseURL, username, password string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		baseURL:   baseURL,
		username:  username,
		password:  password,
		attendees: make(map[string]string),
		logger:    logger,
		now:       time.Now,
	}
}

// WithCalendarPath sets the calendar that holds the user's meetings.
func (p *Provider) WithCalendarPath(path string) *Provider {
	p.calendarPath = path
	return p
}

// WithAttendeeCalendars maps attendee addresses to calendar collection paths
// readable by this account. Attendees without a path are treated as free.
func (p *Provider) WithAttendeeCalendars(paths map[string]string) *Provider {
	for address, path := range paths {
		p.attendees[strings.ToLower(strings.TrimSpace(address))] = path
	}
	return p
}

// BusyIntervals returns the opaque events of attendee's calendar within window.
func (p *Provider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) (busy []availability.Interval, err error) {
	ctx, span := observability.StartClientSpan(ctx, "caldav", "calendar-query", attribute.String("attendee", attendee))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	var calPath string
	if attendee == calendarApp.Self {
		if calPath, err = p.findCalendarPath(ctx, client); err != nil {
			return nil, err
		}
	} else {
		path, ok := p.attendees[strings.ToLower(attendee)]
		if !ok {
			p.logger.Warn("no caldav calendar configured for attendee", "attendee", attendee)
			return nil, nil
		}
		calPath = path
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Props: []string{"VERSION"},
			Comps: []caldav.CalendarCompRequest{
				{
					Name:  "VEVENT",
					Props: []string{"UID", "DTSTART", "DTEND", "DURATION", "RRULE", "EXDATE", "RECURRENCE-ID", "TRANSP", "STATUS"},
				},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: window.Start.UTC(),
					End:   window.End.UTC(),
				},
			},
		},
	}

	objects, err := client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	return busyFromObjects(p.logger, attendee, objects, window), nil
}

// GetEvent loads an event by object path or UID from the user's calendar.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (event *domain.Event, err error) {
	ctx, span := observability.StartClientSpan(ctx, "caldav", "get", attribute.String("event_id", eventID))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.getClient()
	if err != nil {
		return nil, err
	}
	obj, err := p.findObject(ctx, client, eventID)
	if err != nil {
		return nil, err
	}
	event, ok := eventFromObject(obj, p.username)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return event, nil
}

// UpdateEventTime rewrites DTSTART/DTEND of the event in UTC.
func (p *Provider) UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) (err error) {
	ctx, span := observability.StartClientSpan(ctx, "caldav", "put", attribute.String("event_id", eventID))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.getClient()
	if err != nil {
		return err
	}
	obj, err := p.findObject(ctx, client, eventID)
	if err != nil {
		return err
	}
	if !retime(obj.Data, slot, p.now()) {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	if _, err := client.PutCalendarObject(ctx, obj.Path, obj.Data); err != nil {
		return mapError("put event", eventID, err)
	}
	p.logger.Info("caldav event moved", "event_id", eventID, "path", obj.Path, "slot", slot.String())
	return nil
}

// findObject resolves eventID as an object path, then as <uid>.ics in the
// calendar, then through a UID query.
func (p *Provider) findObject(ctx context.Context, client *caldav.Client, eventID string) (*caldav.CalendarObject, error) {
	if strings.Contains(eventID, "/") {
		obj, err := client.GetCalendarObject(ctx, eventID)
		if err != nil {
			return nil, mapError("get event", eventID, err)
		}
		return obj, nil
	}

	calPath, err := p.findCalendarPath(ctx, client)
	if err != nil {
		return nil, err
	}
	obj, err := client.GetCalendarObject(ctx, objectPath(calPath, eventID))
	if err == nil {
		return obj, nil
	}
	if !isNotFound(err) {
		return nil, mapError("get event", eventID, err)
	}

	objects, err := client.QueryCalendar(ctx, calPath, &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{Name: "VCALENDAR", AllProps: true, AllComps: true},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Props: []caldav.PropFilter{{Name: ical.PropUID, TextMatch: &caldav.TextMatch{Text: eventID}}},
			}},
		},
	})
	if err != nil {
		return nil, mapError("query event", eventID, err)
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return &objects[0], nil
}

func objectPath(calPath, uid string) string {
	if !strings.HasSuffix(calPath, "/") {
		calPath += "/"
	}
	return calPath + uid + ".ics"
}

func (p *Provider) getClient() (*caldav.Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, p.username, p.password), p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return client, nil
}

func (p *Provider) findCalendarPath(ctx context.Context, client *caldav.Client) (string, error) {
	if p.calendarPath != "" {
		return p.calendarPath, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", ErrNoCalendar
	}

	// First calendar is the account default
	return cals[0].Path, nil
}

// isNotFound reports whether a go-webdav error carries a 404 or 410 status.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "404") || strings.Contains(msg, "410")
}

func mapError(op, eventID string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return fmt.Errorf("caldav %s: %w", op, err)
}
