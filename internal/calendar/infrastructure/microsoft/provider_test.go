package microsoft

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type staticTokens struct{}

func (staticTokens) TokenSource(context.Context, uuid.UUID) (oauth2.TokenSource, error) {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "graph-token", TokenType: "Bearer"}), nil
}

var (
	windowStart = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	window      = availability.NewSearchWindow(windowStart, windowStart.AddDate(0, 0, 14))
)

func newTestProvider(t *testing.T, mux *http.ServeMux) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer graph-token", r.Header.Get("Authorization"))
		assert.Equal(t, `outlook.timezone="UTC"`, r.Header.Get("Prefer"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewProviderWithBaseURL(staticTokens{}, nil, srv.URL+"/v1.0/")
}

func TestBatchBusyIntervals(t *testing.T) {
	var schedule scheduleRequest
	pages := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/calendarView", func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("page") == "" {
			assert.Equal(t, "2026-03-02T00:00:00Z", r.URL.Query().Get("startDateTime"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{
					{"showAs": "busy", "start": msDateTime{"2026-03-02T09:00:00.0000000", "UTC"}, "end": msDateTime{"2026-03-02T10:00:00.0000000", "UTC"}},
					{"showAs": "free", "start": msDateTime{"2026-03-02T11:00:00.0000000", "UTC"}, "end": msDateTime{"2026-03-02T12:00:00.0000000", "UTC"}},
				},
				"@odata.nextLink": "http://" + r.Host + "/v1.0/me/calendarView?page=2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"showAs": "tentative", "isCancelled": false, "start": msDateTime{"2026-03-03T09:00:00.0000000", "UTC"}, "end": msDateTime{"2026-03-03T09:30:00.0000000", "UTC"}},
				{"showAs": "busy", "isCancelled": true, "start": msDateTime{"2026-03-04T09:00:00.0000000", "UTC"}, "end": msDateTime{"2026-03-04T09:30:00.0000000", "UTC"}},
			},
		})
	})
	mux.HandleFunc("POST /v1.0/me/calendar/getSchedule", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&schedule))
		_, _ = w.Write([]byte(`{"value": [
			{"scheduleId": "Alice@Example.com", "scheduleItems": [
				{"status": "busy", "start": {"dateTime": "2026-03-02T13:00:00.0000000", "timeZone": "UTC"}, "end": {"dateTime": "2026-03-02T14:00:00.0000000", "timeZone": "UTC"}},
				{"status": "oof", "start": {"dateTime": "bad", "timeZone": "UTC"}, "end": {"dateTime": "2026-03-02T14:00:00.0000000", "timeZone": "UTC"}}
			]},
			{"scheduleId": "ext@other.org", "error": {"message": "not found", "responseCode": "ErrorMailRecipientNotFound"}}
		]}`))
	})
	p := newTestProvider(t, mux)

	busy, err := p.BatchBusyIntervals(context.Background(), uuid.New(),
		[]string{calendarApp.Self, "alice@example.com", "ext@other.org"}, window)
	require.NoError(t, err)

	assert.Equal(t, 2, pages)
	assert.Len(t, busy[calendarApp.Self], 2)
	assert.Equal(t, []string{"alice@example.com", "ext@other.org"}, schedule.Schedules)
	assert.Equal(t, "2026-03-02T00:00:00", schedule.StartTime.DateTime)

	require.Len(t, busy["alice@example.com"], 1)
	assert.Equal(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), busy["alice@example.com"][0].Start())
	assert.Empty(t, busy["ext@other.org"])
}

func TestGetEvent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/me/events/AAMk1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": "AAMk1",
			"subject": "Sync",
			"start": {"dateTime": "2026-03-03T10:00:00.0000000", "timeZone": "UTC"},
			"end": {"dateTime": "2026-03-03T10:30:00.0000000", "timeZone": "UTC"},
			"attendees": [{"type": "required", "emailAddress": {"address": "Carol@Example.com"}}]
		}`))
	})
	mux.HandleFunc("GET /v1.0/me/events/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"code": "ErrorItemNotFound"}}`))
	})
	mux.HandleFunc("GET /v1.0/me/events/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	p := newTestProvider(t, mux)

	ev, err := p.GetEvent(context.Background(), uuid.New(), "AAMk1")
	require.NoError(t, err)
	assert.Equal(t, "Sync", ev.Summary)
	assert.Equal(t, []string{"carol@example.com"}, ev.Attendees)
	assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), ev.Start)

	_, err = p.GetEvent(context.Background(), uuid.New(), "missing")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = p.GetEvent(context.Background(), uuid.New(), "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrEventNotFound)
	assert.Contains(t, err.Error(), "status=500")
}

func TestUpdateEventTime_WritesUTC(t *testing.T) {
	var patch map[string]msDateTime
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /v1.0/me/events/AAMk1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		_, _ = w.Write([]byte(`{"id": "AAMk1"}`))
	})
	mux.HandleFunc("PATCH /v1.0/me/events/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	p := newTestProvider(t, mux)

	slot := availability.MustInterval(
		time.Date(2026, 3, 4, 8, 0, 0, 0, time.FixedZone("EST", -5*3600)),
		time.Date(2026, 3, 4, 9, 0, 0, 0, time.FixedZone("EST", -5*3600)),
	)
	require.NoError(t, p.UpdateEventTime(context.Background(), uuid.New(), "AAMk1", slot))
	assert.Equal(t, msDateTime{DateTime: "2026-03-04T13:00:00", TimeZone: "UTC"}, patch["start"])
	assert.Equal(t, msDateTime{DateTime: "2026-03-04T14:00:00", TimeZone: "UTC"}, patch["end"])

	err := p.UpdateEventTime(context.Background(), uuid.New(), "gone", slot)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestProvider_WithoutTokens(t *testing.T) {
	p := NewProvider(nil, nil)
	_, err := p.BusyIntervals(context.Background(), uuid.New(), calendarApp.Self, window)
	assert.ErrorIs(t, err, ErrOAuthNotConfigured)
}
