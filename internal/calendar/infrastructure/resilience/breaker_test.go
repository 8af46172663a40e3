package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error) {
	args := m.Called(ctx, userID, attendee, window)
	busy, _ := args.Get(0).([]availability.Interval)
	return busy, args.Error(1)
}

func (m *mockProvider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*domain.Event, error) {
	args := m.Called(ctx, userID, eventID)
	ev, _ := args.Get(0).(*domain.Event)
	return ev, args.Error(1)
}

func (m *mockProvider) UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) error {
	args := m.Called(ctx, userID, eventID, slot)
	return args.Error(0)
}

var window = availability.NewSearchWindow(
	time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
)

func testConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 2, MaxRequests: 1, Interval: time.Minute, Timeout: time.Hour}
}

func TestProvider_PassesThrough(t *testing.T) {
	inner := new(mockProvider)
	busy := []availability.Interval{availability.MustInterval(window.Start.Add(time.Hour), window.Start.Add(2*time.Hour))}
	inner.On("BusyIntervals", mock.Anything, mock.Anything, "primary", window).Return(busy, nil)
	inner.On("GetEvent", mock.Anything, mock.Anything, "evt-1").Return(&domain.Event{ID: "evt-1"}, nil)

	metrics := observability.NewInMemoryMetrics()
	p := Wrap("google", inner, testConfig(), metrics, nil)

	got, err := p.BusyIntervals(context.Background(), uuid.New(), "primary", window)
	require.NoError(t, err)
	assert.Equal(t, busy, got)

	batch, err := p.BatchBusyIntervals(context.Background(), uuid.New(), []string{"primary"}, window)
	require.NoError(t, err)
	assert.Equal(t, busy, batch["primary"])

	ev, err := p.GetEvent(context.Background(), uuid.New(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)

	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricProviderCalls,
		observability.T("provider", "google"), observability.T("operation", "busy"), observability.T("outcome", "ok")))
	inner.AssertExpectations(t)
}

func TestProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := new(mockProvider)
	inner.On("UpdateEventTime", mock.Anything, mock.Anything, "evt-1", mock.Anything).Return(errors.New("503 unavailable")).Times(2)

	metrics := observability.NewInMemoryMetrics()
	p := Wrap("microsoft", inner, testConfig(), metrics, nil)
	slot := availability.MustInterval(window.Start, window.Start.Add(time.Hour))

	for range 2 {
		err := p.UpdateEventTime(context.Background(), uuid.New(), "evt-1", slot)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, p.State())

	err := p.UpdateEventTime(context.Background(), uuid.New(), "evt-1", slot)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, float64(gobreaker.StateOpen), metrics.GetGauge(observability.MetricBreakerState, observability.T("provider", "microsoft")))
	inner.AssertNumberOfCalls(t, "UpdateEventTime", 2)
}

func TestProvider_DomainErrorsDoNotTrip(t *testing.T) {
	inner := new(mockProvider)
	inner.On("GetEvent", mock.Anything, mock.Anything, "gone").Return(nil, domain.ErrEventNotFound)

	p := Wrap("caldav", inner, testConfig(), nil, nil)
	for range 5 {
		_, err := p.GetEvent(context.Background(), uuid.New(), "gone")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, p.State())
}

func TestWrap_DefaultsConfig(t *testing.T) {
	p := Wrap("ics", new(mockProvider), BreakerConfig{}, nil, nil)
	assert.Equal(t, gobreaker.StateClosed, p.State())
	assert.Equal(t, uint32(5), DefaultBreakerConfig().FailureThreshold)
}
