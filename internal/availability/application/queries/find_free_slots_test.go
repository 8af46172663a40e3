package queries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window domain.SearchWindow) ([]domain.Interval, error) {
	args := m.Called(ctx, userID, attendee, window)
	busy, _ := args.Get(0).([]domain.Interval)
	return busy, args.Error(1)
}

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func hour(h int) time.Time { return now.Add(time.Duration(h) * time.Hour) }

func newHandler(reader calendarApp.BusyReader, metrics observability.Metrics) *FindFreeSlotsHandler {
	return NewFindFreeSlotsHandler(reader, 1, metrics, nil).WithClock(func() time.Time { return now })
}

func TestFindFreeSlots_MergesAttendeesAndSelf(t *testing.T) {
	reader := new(mockReader)
	window := domain.NewSearchWindow(hour(0), hour(10))
	reader.On("BusyIntervals", mock.Anything, mock.Anything, "alice@example.com", window).
		Return([]domain.Interval{domain.MustInterval(hour(1), hour(3))}, nil)
	reader.On("BusyIntervals", mock.Anything, mock.Anything, "bob@example.com", window).
		Return([]domain.Interval{domain.MustInterval(hour(2), hour(4)), domain.MustInterval(hour(6), hour(7))}, nil)
	reader.On("BusyIntervals", mock.Anything, mock.Anything, calendarApp.Self, window).
		Return([]domain.Interval{domain.MustInterval(hour(4), hour(5))}, nil)

	metrics := observability.NewInMemoryMetrics()
	result, err := newHandler(reader, metrics).Handle(context.Background(), FindFreeSlotsQuery{
		UserID:    uuid.New(),
		Attendees: []string{"mailto:Alice@example.com", "bob@example.com", "alice@example.com"},
		Window:    window,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@example.com", "bob@example.com", calendarApp.Self}, result.Attendees)
	assert.Equal(t, []domain.Interval{
		domain.MustInterval(hour(1), hour(5)),
		domain.MustInterval(hour(6), hour(7)),
	}, result.Busy.Intervals())
	assert.Equal(t, []domain.Interval{
		domain.MustInterval(hour(0), hour(1)),
		domain.MustInterval(hour(5), hour(6)),
		domain.MustInterval(hour(7), hour(10)),
	}, result.Free)
	assert.Len(t, metrics.GetTimings(observability.MetricFreeSlotSearch), 1)
	reader.AssertExpectations(t)
}

func TestFindFreeSlots_LimitAndMinDuration(t *testing.T) {
	reader := new(mockReader)
	window := domain.NewSearchWindow(hour(0), hour(10))
	reader.On("BusyIntervals", mock.Anything, mock.Anything, "alice@example.com", window).
		Return([]domain.Interval{
			domain.MustInterval(hour(0).Add(30*time.Minute), hour(1)),
			domain.MustInterval(hour(2), hour(3)),
			domain.MustInterval(hour(5), hour(6)),
		}, nil)

	result, err := newHandler(reader, nil).Handle(context.Background(), FindFreeSlotsQuery{
		Attendees:   []string{"alice@example.com"},
		Window:      window,
		Limit:       2,
		MinDuration: time.Hour,
		ExcludeSelf: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Interval{
		domain.MustInterval(hour(1), hour(2)),
		domain.MustInterval(hour(3), hour(5)),
	}, result.Free)
}

func TestFindFreeSlots_ClampsWindowToNow(t *testing.T) {
	reader := new(mockReader)
	clamped := domain.NewSearchWindow(now, hour(4))
	reader.On("BusyIntervals", mock.Anything, mock.Anything, calendarApp.Self, clamped).Return(nil, nil)

	result, err := newHandler(reader, nil).Handle(context.Background(), FindFreeSlotsQuery{
		Window: domain.NewSearchWindow(hour(-5), hour(4)),
	})
	require.NoError(t, err)
	assert.Equal(t, clamped, result.Window)
	assert.Equal(t, []domain.Interval{domain.MustInterval(now, hour(4))}, result.Free)
}

func TestFindFreeSlots_DefaultWindow(t *testing.T) {
	h := newHandler(new(mockReader), nil)
	assert.Equal(t, domain.NewSearchWindow(now, now.AddDate(0, 0, 1)), h.Window(domain.SearchWindow{}))
}

func TestFindFreeSlots_PastWindowIsEmpty(t *testing.T) {
	reader := new(mockReader)
	result, err := newHandler(reader, nil).Handle(context.Background(), FindFreeSlotsQuery{
		Window: domain.NewSearchWindow(hour(-5), hour(-1)),
	})
	require.NoError(t, err)
	assert.Empty(t, result.Free)
	reader.AssertNotCalled(t, "BusyIntervals", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFindFreeSlots_ReaderError(t *testing.T) {
	reader := new(mockReader)
	reader.On("BusyIntervals", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	_, err := newHandler(reader, nil).Handle(context.Background(), FindFreeSlotsQuery{Attendees: []string{"a@example.com"}})
	assert.ErrorContains(t, err, "rate limited")
}

func TestFindFreeSlots_NoAttendees(t *testing.T) {
	_, err := newHandler(new(mockReader), nil).Handle(context.Background(), FindFreeSlotsQuery{ExcludeSelf: true})
	assert.ErrorIs(t, err, ErrNoAttendees)
}
