package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/felixgeelhaar/reslot/adapter/cli"
	availabilityQueries "github.com/felixgeelhaar/reslot/internal/availability/application/queries"
	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	calendarDomain "github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/commands"
	"github.com/felixgeelhaar/reslot/internal/reschedule/application/queries"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/infrastructure/persistence"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/outbox"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

// calendar is free 09:00-10:00 and 15:00-16:00 on day for everyone.
type calendar struct {
	moved map[string]availability.Interval
}

func (c *calendar) BusyIntervals(_ context.Context, _ uuid.UUID, _ string, _ availability.SearchWindow) ([]availability.Interval, error) {
	return []availability.Interval{
		availability.MustInterval(day, day.Add(9*time.Hour)),
		availability.MustInterval(day.Add(10*time.Hour), day.Add(15*time.Hour)),
		availability.MustInterval(day.Add(16*time.Hour), day.Add(24*time.Hour)),
	}, nil
}

func (c *calendar) GetEvent(_ context.Context, _ uuid.UUID, eventID string) (*calendarDomain.Event, error) {
	if eventID != "evt-1" {
		return nil, calendarDomain.ErrEventNotFound
	}
	return &calendarDomain.Event{ID: eventID, Attendees: []string{"bob@example.com"}}, nil
}

func (c *calendar) UpdateEventTime(_ context.Context, _ uuid.UUID, eventID string, slot availability.Interval) error {
	c.moved[eventID] = slot
	return nil
}

var _ calendarApp.Provider = (*calendar)(nil)

type attempts struct {
	list []domain.RescheduleAttempt
}

func (a *attempts) Create(_ context.Context, attempt domain.RescheduleAttempt) error {
	a.list = append(a.list, attempt)
	return nil
}

func (a *attempts) ListByUser(_ context.Context, _ uuid.UUID, _ int) ([]domain.RescheduleAttempt, error) {
	return a.list, nil
}

func (a *attempts) ListBySession(_ context.Context, sessionID uuid.UUID) ([]domain.RescheduleAttempt, error) {
	var out []domain.RescheduleAttempt
	for _, attempt := range a.list {
		if attempt.SessionID == sessionID {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func newTools(t *testing.T) (rescheduleTools, *calendar) {
	t.Helper()
	cal := &calendar{moved: map[string]availability.Interval{}}
	deps := commands.Deps{
		Store:    persistence.NewMemorySessionStore(persistence.StoreOptions{Retention: time.Hour}),
		Attempts: &attempts{},
		Outbox:   outbox.NewInMemoryRepository(),
	}
	slots := availabilityQueries.NewFindFreeSlotsHandler(cal, 14, nil, nil)
	app := cli.NewApp(
		slots,
		commands.NewRequestRescheduleHandler(cal, slots, commands.Config{}, deps),
		commands.NewSelectCandidateHandler(cal, deps),
		commands.NewCancelSessionHandler(deps),
		queries.NewGetSessionHandler(deps.Store),
		queries.NewListAttemptsHandler(deps.Attempts),
	)
	app.SetCurrentUserID(uuid.New())
	return rescheduleTools{app: app, now: func() time.Time { return day }}, cal
}

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := map[any]bool{}
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, name := range []string{
		"cli.health", "cli.version",
		"reschedule.request", "reschedule.select", "reschedule.cancel", "reschedule.show", "reschedule.attempts",
		"availability.free", "auth.url", "auth.exchange", "auth.status",
	} {
		assert.True(t, names[name], "%s should be registered", name)
	}
}

func TestRegisterCLITools_RequiresApp(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})
	assert.EqualError(t, RegisterCLITools(srv, ToolDependencies{}), "app is required")
	assert.EqualError(t, RegisterCLITools(nil, ToolDependencies{}), "server is required")
}

func TestRescheduleTools_RequestAndSelect(t *testing.T) {
	tools, cal := newTools(t)
	ctx := context.Background()

	out, err := tools.request(ctx, rescheduleRequestInput{EventID: "evt-1", From: "2030-03-04", Days: 1})
	require.NoError(t, err)
	assert.Equal(t, "open", out.Session.Status)
	assert.Empty(t, out.SupersededID)
	require.Len(t, out.Session.Candidates, 2)
	assert.Equal(t, day.Add(9*time.Hour), out.Session.Candidates[0].Start)
	assert.Equal(t, day.Add(15*time.Hour), out.Session.Candidates[1].Start)

	again, err := tools.request(ctx, rescheduleRequestInput{EventID: "evt-1", From: "2030-03-04", Days: 1})
	require.NoError(t, err)
	assert.Equal(t, out.Session.ID.String(), again.SupersededID)

	sessionID := again.Session.ID.String()
	committed, err := tools.selectCandidate(ctx, rescheduleSelectInput{SessionID: sessionID, Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "committed", committed.Status)
	require.NotNil(t, committed.Chosen)
	assert.Equal(t, 1, committed.Chosen.Index)
	assert.Equal(t, day.Add(15*time.Hour), cal.moved["evt-1"].Start())

	history, err := tools.attempts(ctx, rescheduleAttemptsInput{SessionID: sessionID})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
}

func TestRescheduleTools_CancelAndShow(t *testing.T) {
	tools, _ := newTools(t)
	ctx := context.Background()

	out, err := tools.request(ctx, rescheduleRequestInput{EventID: "evt-1", From: "2030-03-04", To: "2030-03-05"})
	require.NoError(t, err)
	id := out.Session.ID.String()

	cancelled, err := tools.cancel(ctx, rescheduleSessionInput{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)

	shown, err := tools.show(ctx, rescheduleSessionInput{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, "user", shown.CloseReason)

	_, err = tools.selectCandidate(ctx, rescheduleSelectInput{SessionID: id, Index: 0})
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestRescheduleTools_Errors(t *testing.T) {
	tools, _ := newTools(t)
	ctx := context.Background()

	_, err := tools.request(ctx, rescheduleRequestInput{EventID: "missing"})
	assert.ErrorIs(t, err, calendarDomain.ErrEventNotFound)

	_, err = tools.request(ctx, rescheduleRequestInput{})
	assert.ErrorIs(t, err, commands.ErrEventIDRequired)

	_, err = tools.show(ctx, rescheduleSessionInput{SessionID: uuid.NewString()})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = tools.selectCandidate(ctx, rescheduleSelectInput{SessionID: "nope"})
	assert.ErrorContains(t, err, "invalid id")

	_, err = rescheduleTools{}.request(ctx, rescheduleRequestInput{EventID: "evt-1"})
	assert.ErrorIs(t, err, errRescheduleUnavailable)
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC)

	w, err := parseWindow("", "", 0, now)
	require.NoError(t, err)
	assert.Equal(t, availability.SearchWindow{}, w)

	w, err = parseWindow("", "", 2, now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 2), w.End)

	w, err = parseWindow("2030-03-05T09:00:00+01:00", "2030-03-06", 0, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2030, 3, 5, 8, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2030, 3, 6, 0, 0, 0, 0, time.UTC), w.End)

	_, err = parseWindow("2030-03-05", "", 0, now)
	assert.EqualError(t, err, "from needs to or days")

	_, err = parseWindow("soon", "", 1, now)
	assert.EqualError(t, err, `invalid time "soon", use RFC 3339 or YYYY-MM-DD`)
}
