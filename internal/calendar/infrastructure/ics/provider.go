package ics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Provider is a read-only calendar backed by iCalendar feeds. It serves busy
// time as a primary provider or as an overlay; event writes are refused.
type Provider struct {
	fetcher *Fetcher
	feeds   map[string][]Feed
	logger  *slog.Logger
}

// NewProvider groups feeds by the attendee they describe.
func NewProvider(fetcher *Fetcher, feeds []Feed, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{fetcher: fetcher, feeds: make(map[string][]Feed), logger: logger}
	for _, f := range feeds {
		key := attendeeKey(f.Attendee)
		p.feeds[key] = append(p.feeds[key], f)
	}
	return p
}

func attendeeKey(attendee string) string {
	attendee = strings.ToLower(strings.TrimSpace(attendee))
	if attendee == "" {
		return calendarApp.Self
	}
	return attendee
}

// BusyIntervals unions the busy time of every feed registered for attendee.
// Any feed that cannot be read fails the call.
func (p *Provider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) (busy []availability.Interval, err error) {
	feeds := p.feeds[attendeeKey(attendee)]
	if len(feeds) == 0 {
		return nil, nil
	}

	ctx, span := observability.StartClientSpan(ctx, "ics", "fetch",
		attribute.String("attendee", attendee), attribute.Int("feeds", len(feeds)))
	defer func() { observability.EndSpan(span, err) }()

	for _, feed := range feeds {
		events, err := p.load(ctx, feed)
		if err != nil {
			return nil, err
		}
		busy = append(busy, busyWithin(p.logger, attendee, events, window)...)
	}
	return busy, nil
}

// GetEvent finds a non-override event by UID in the user's own feeds.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*domain.Event, error) {
	for _, feed := range p.feeds[calendarApp.Self] {
		events, err := p.load(ctx, feed)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.uid == eventID && ev.recurrence == nil && !ev.cancelled {
				return ev.toDomain(), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
}

// UpdateEventTime always fails; published feeds cannot be written.
func (p *Provider) UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) error {
	return fmt.Errorf("%w: %s", domain.ErrReadOnlyProvider, domain.ProviderICS)
}

func (p *Provider) load(ctx context.Context, feed Feed) ([]parsedEvent, error) {
	body, err := p.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, fmt.Errorf("ics feed %q: %w", feed.Name, err)
	}
	events, err := parseFeed(p.logger, body)
	if err != nil {
		return nil, fmt.Errorf("ics feed %q: parse: %w", feed.Name, err)
	}
	return events, nil
}
