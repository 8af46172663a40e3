package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
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
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Microsoft OAuth2 endpoints
const (
	MicrosoftAuthURL  = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	MicrosoftTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
)

// DefaultScopes for reading schedules and moving events.
var DefaultScopes = []string{
	"https://graph.microsoft.com/Calendars.ReadWrite",
	"https://graph.microsoft.com/Calendars.Read.Shared",
	"https://graph.microsoft.com/User.Read",
	"offline_access",
}

// graphTimeLayout is how Graph renders dateTime values (seven fractional digits, no zone).
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// getSchedule accepts at most this many addresses per call.
const scheduleBatchSize = 20

// ErrOAuthNotConfigured is returned when the provider has no token source.
var ErrOAuthNotConfigured = errors.New("microsoft oauth not configured")

// Provider reads schedules and moves events through Microsoft Graph.
type Provider struct {
	oauthService calendarApp.TokenSourceProvider
	logger       *slog.Logger
	baseURL      string
}

// NewProvider creates a Microsoft Graph provider.
func NewProvider(oauthService calendarApp.TokenSourceProvider, logger *slog.Logger) *Provider {
	return NewProviderWithBaseURL(oauthService, logger, defaultBaseURL)
}

// NewProviderWithBaseURL creates a provider with a custom Graph base URL.
func NewProviderWithBaseURL(oauthService calendarApp.TokenSourceProvider, logger *slog.Logger, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		oauthService: oauthService,
		logger:       logger,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
	}
}

// BusyIntervals returns one attendee's busy periods.
func (p *Provider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error) {
	res, err := p.BatchBusyIntervals(ctx, userID, []string{attendee}, window)
	if err != nil {
		return nil, err
	}
	return res[attendee], nil
}

// BatchBusyIntervals reads the user's own calendar view and the schedules of
// the other attendees.
func (p *Provider) BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (out map[string][]availability.Interval, err error) {
	ctx, span := observability.StartClientSpan(ctx, "microsoft", "schedule", attribute.Int("attendees", len(attendees)))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.getHTTPClient(ctx, userID)
	if err != nil {
		return nil, err
	}

	out = make(map[string][]availability.Interval, len(attendees))
	others := make([]string, 0, len(attendees))
	for _, a := range attendees {
		if a == calendarApp.Self {
			busy, err := p.calendarView(ctx, client, window)
			if err != nil {
				return nil, err
			}
			out[a] = busy
			continue
		}
		others = append(others, a)
	}

	for chunk := range slices.Chunk(others, scheduleBatchSize) {
		res, err := p.getSchedule(ctx, client, chunk, window)
		if err != nil {
			return nil, err
		}
		for a, busy := range res {
			out[a] = append(out[a], busy...)
		}
	}
	return out, nil
}

func (p *Provider) calendarView(ctx context.Context, client *http.Client, window availability.SearchWindow) ([]availability.Interval, error) {
	params := url.Values{}
	params.Set("startDateTime", window.Start.UTC().Format(time.RFC3339))
	params.Set("endDateTime", window.End.UTC().Format(time.RFC3339))
	params.Set("$select", "id,showAs,isCancelled,start,end")
	params.Set("$top", "250")
	next := fmt.Sprintf("%s/me/calendarView?%s", p.baseURL, params.Encode())

	var raw []calendarApp.RawInterval
	for next != "" {
		var page struct {
			Value    []msEvent `json:"value"`
			NextLink string    `json:"@odata.nextLink"`
		}
		if err := p.do(ctx, client, http.MethodGet, next, nil, &page); err != nil {
			return nil, fmt.Errorf("microsoft calendar view: %w", err)
		}
		for _, ev := range page.Value {
			if ev.IsCancelled || ev.ShowAs == "free" || ev.ShowAs == "workingElsewhere" {
				continue
			}
			raw = append(raw, calendarApp.RawInterval{Start: ev.Start.DateTime, End: ev.End.DateTime})
		}
		next = page.NextLink
	}
	return calendarApp.ParseBusy(p.logger, calendarApp.Self, graphTimeLayout, time.UTC, raw), nil
}

func (p *Provider) getSchedule(ctx context.Context, client *http.Client, schedules []string, window availability.SearchWindow) (map[string][]availability.Interval, error) {
	body := scheduleRequest{
		Schedules:                schedules,
		StartTime:                msDateTime{DateTime: window.Start.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		EndTime:                  msDateTime{DateTime: window.End.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		AvailabilityViewInterval: 30,
	}
	var resp struct {
		Value []scheduleInformation `json:"value"`
	}
	if err := p.do(ctx, client, http.MethodPost, p.baseURL+"/me/calendar/getSchedule", body, &resp); err != nil {
		return nil, fmt.Errorf("microsoft get schedule: %w", err)
	}

	requested := make(map[string]string, len(schedules))
	for _, s := range schedules {
		requested[strings.ToLower(s)] = s
	}

	out := make(map[string][]availability.Interval, len(schedules))
	for _, info := range resp.Value {
		attendee, ok := requested[strings.ToLower(info.ScheduleID)]
		if !ok {
			continue
		}
		if info.Error != nil {
			p.logger.Warn("microsoft schedule unavailable",
				"attendee", attendee, "message", info.Error.Message)
			continue
		}
		raw := make([]calendarApp.RawInterval, 0, len(info.ScheduleItems))
		for _, item := range info.ScheduleItems {
			if item.Status == "free" || item.Status == "workingElsewhere" {
				continue
			}
			raw = append(raw, calendarApp.RawInterval{Start: item.Start.DateTime, End: item.End.DateTime})
		}
		out[attendee] = calendarApp.ParseBusy(p.logger, attendee, graphTimeLayout, time.UTC, raw)
	}
	return out, nil
}

// GetEvent loads an event of the signed-in user.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (event *domain.Event, err error) {
	ctx, span := observability.StartClientSpan(ctx, "microsoft", "events.get", attribute.String("event_id", eventID))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.getHTTPClient(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ev msEvent
	eventURL := fmt.Sprintf("%s/me/events/%s?$select=id,subject,start,end,attendees,isCancelled", p.baseURL, url.PathEscape(eventID))
	if err := p.do(ctx, client, http.MethodGet, eventURL, nil, &ev); err != nil {
		return nil, mapError("get event", eventID, err)
	}
	if ev.IsCancelled {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}

	event = &domain.Event{ID: ev.ID, Summary: ev.Subject}
	for _, a := range ev.Attendees {
		event.Attendees = append(event.Attendees, a.EmailAddress.Address)
	}
	event.Attendees = domain.NormalizeAttendees(event.Attendees)
	event.Start, _ = time.ParseInLocation(graphTimeLayout, ev.Start.DateTime, time.UTC)
	event.End, _ = time.ParseInLocation(graphTimeLayout, ev.End.DateTime, time.UTC)
	return event, nil
}

// UpdateEventTime moves the event to slot, written in UTC.
func (p *Provider) UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) (err error) {
	ctx, span := observability.StartClientSpan(ctx, "microsoft", "events.patch", attribute.String("event_id", eventID))
	defer func() { observability.EndSpan(span, err) }()

	client, err := p.getHTTPClient(ctx, userID)
	if err != nil {
		return err
	}
	patch := struct {
		Start msDateTime `json:"start"`
		End   msDateTime `json:"end"`
	}{
		Start: msDateTime{DateTime: slot.Start().UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		End:   msDateTime{DateTime: slot.End().UTC().Format(graphTimeLayout), TimeZone: "UTC"},
	}
	eventURL := fmt.Sprintf("%s/me/events/%s", p.baseURL, url.PathEscape(eventID))
	if err := p.do(ctx, client, http.MethodPatch, eventURL, patch, nil); err != nil {
		return mapError("patch event", eventID, err)
	}
	p.logger.Info("microsoft event moved", "event_id", eventID, "slot", slot.String())
	return nil
}

func (p *Provider) getHTTPClient(ctx context.Context, userID uuid.UUID) (*http.Client, error) {
	if p.oauthService == nil {
		return nil, ErrOAuthNotConfigured
	}
	tokenSource, err := p.oauthService.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := tokenSource.Token()
	if err != nil {
		p.logger.Warn("oauth token refresh failed", "error", err)
		return nil, err
	}
	if !token.Expiry.IsZero() && time.Until(token.Expiry) < 5*time.Minute {
		p.logger.Warn("oauth token nearing expiry", "expires_at", token.Expiry)
	}

	return &http.Client{
		Timeout: 15 * time.Second,
		Transport: &oauth2.Transport{
			Base:   http.DefaultTransport,
			Source: tokenSource,
		},
	}, nil
}

func (p *Provider) do(ctx context.Context, client *http.Client, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError is a non-2xx Graph response.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("microsoft calendar API failed: status=%d body=%s", e.StatusCode, e.Body)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &apiError{StatusCode: resp.StatusCode, Body: string(body)}
}

func mapError(op, eventID string, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusGone) {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return fmt.Errorf("microsoft %s: %w", op, err)
}

type msEvent struct {
	ID          string       `json:"id,omitempty"`
	Subject     string       `json:"subject"`
	Start       msDateTime   `json:"start"`
	End         msDateTime   `json:"end"`
	ShowAs      string       `json:"showAs,omitempty"`
	IsCancelled bool         `json:"isCancelled,omitempty"`
	Attendees   []msAttendee `json:"attendees,omitempty"`
}

type msDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type msAttendee struct {
	Type         string         `json:"type,omitempty"`
	EmailAddress msEmailAddress `json:"emailAddress"`
}

type msEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

type scheduleRequest struct {
	Schedules                []string   `json:"schedules"`
	StartTime                msDateTime `json:"startTime"`
	EndTime                  msDateTime `json:"endTime"`
	AvailabilityViewInterval int        `json:"availabilityViewInterval"`
}

type scheduleInformation struct {
	ScheduleID    string         `json:"scheduleId"`
	ScheduleItems []scheduleItem `json:"scheduleItems"`
	Error         *struct {
		Message      string `json:"message"`
		ResponseCode string `json:"responseCode"`
	} `json:"error,omitempty"`
}

type scheduleItem struct {
	Status string     `json:"status"`
	Start  msDateTime `json:"start"`
	End    msDateTime `json:"end"`
}
