package application_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

type stubReader struct {
	busy map[string][]availability.Interval
	err  error
}

func (s *stubReader) BusyIntervals(_ context.Context, _ uuid.UUID, attendee string, _ availability.SearchWindow) ([]availability.Interval, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.busy[attendee], nil
}

type stubBatchReader struct {
	stubReader
	batchCalls int
}

func (s *stubBatchReader) BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (map[string][]availability.Interval, error) {
	s.batchCalls++
	out := make(map[string][]availability.Interval)
	for _, a := range attendees {
		busy, err := s.BusyIntervals(ctx, userID, a, window)
		if err != nil {
			return nil, err
		}
		out[a] = busy
	}
	return out, nil
}

type stubProvider struct {
	stubReader
	updated []string
}

func (p *stubProvider) UpdateEventTime(_ context.Context, _ uuid.UUID, eventID string, _ availability.Interval) error {
	p.updated = append(p.updated, eventID)
	return nil
}

func (p *stubProvider) GetEvent(_ context.Context, _ uuid.UUID, eventID string) (*domain.Event, error) {
	return &domain.Event{ID: eventID}, nil
}

func TestProviderRegistry(t *testing.T) {
	registry := application.NewProviderRegistry()
	assert.False(t, registry.HasProvider(domain.ProviderGoogle))

	builds := 0
	provider := &stubProvider{}
	registry.Register(domain.ProviderGoogle, func(context.Context) (application.Provider, error) {
		builds++
		return provider, nil
	})
	registry.Register(domain.ProviderCalDAV, func(context.Context) (application.Provider, error) {
		return nil, errors.New("no credentials")
	})

	assert.True(t, registry.HasProvider(domain.ProviderGoogle))
	assert.Equal(t, []domain.ProviderType{domain.ProviderCalDAV, domain.ProviderGoogle}, registry.SupportedProviders())

	for range 2 {
		got, err := registry.Create(context.Background(), domain.ProviderGoogle)
		require.NoError(t, err)
		assert.Same(t, provider, got)
	}
	assert.Equal(t, 1, builds)

	_, err := registry.Create(context.Background(), domain.ProviderCalDAV)
	assert.EqualError(t, err, "no credentials")

	_, err = registry.Create(context.Background(), domain.ProviderMicrosoft)
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestProviderRegistry_RegisterDropsBuiltInstance(t *testing.T) {
	registry := application.NewProviderRegistry()
	first, second := &stubProvider{}, &stubProvider{}
	registry.Register(domain.ProviderICS, func(context.Context) (application.Provider, error) { return first, nil })
	_, err := registry.Create(context.Background(), domain.ProviderICS)
	require.NoError(t, err)

	registry.Register(domain.ProviderICS, func(context.Context) (application.Provider, error) { return second, nil })
	got, err := registry.Create(context.Background(), domain.ProviderICS)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestCompositeReader_UnionsReaders(t *testing.T) {
	a := &stubReader{busy: map[string][]availability.Interval{
		"alice@example.com": {availability.MustInterval(at(0), at(1))},
	}}
	b := &stubBatchReader{stubReader: stubReader{busy: map[string][]availability.Interval{
		"alice@example.com": {availability.MustInterval(at(3), at(4))},
		"bob@example.com":   {availability.MustInterval(at(5), at(6))},
	}}}
	reader := application.NewCompositeReader(a, nil, b)
	window := availability.NewSearchWindow(at(0), at(24))

	busy, err := reader.BusyIntervals(context.Background(), uuid.New(), "alice@example.com", window)
	require.NoError(t, err)
	assert.Len(t, busy, 2)

	batch, err := reader.BatchBusyIntervals(context.Background(), uuid.New(),
		[]string{"alice@example.com", "bob@example.com"}, window)
	require.NoError(t, err)
	assert.Len(t, batch["alice@example.com"], 2)
	assert.Len(t, batch["bob@example.com"], 1)
	assert.Equal(t, 1, b.batchCalls)
}

func TestCompositeReader_FailsWhenAnyReaderFails(t *testing.T) {
	reader := application.NewCompositeReader(&stubReader{}, &stubReader{err: errors.New("feed down")})
	_, err := reader.BusyIntervals(context.Background(), uuid.New(), "a@b.c", availability.NewSearchWindow(at(0), at(1)))
	assert.ErrorContains(t, err, "feed down")
}

func TestWithBusyOverlay(t *testing.T) {
	provider := &stubProvider{stubReader: stubReader{busy: map[string][]availability.Interval{
		application.Self: {availability.MustInterval(at(0), at(1))},
	}}}
	feed := &stubReader{busy: map[string][]availability.Interval{
		application.Self: {availability.MustInterval(at(2), at(3))},
	}}

	assert.Same(t, application.Provider(provider), application.WithBusyOverlay(provider, nil))

	combined := application.WithBusyOverlay(provider, nil, feed)
	busy, err := combined.BusyIntervals(context.Background(), uuid.New(), application.Self, availability.NewSearchWindow(at(0), at(24)))
	require.NoError(t, err)
	assert.Len(t, busy, 2)

	_, ok := combined.(application.BatchBusyReader)
	assert.True(t, ok)

	require.NoError(t, combined.UpdateEventTime(context.Background(), uuid.New(), "evt", availability.MustInterval(at(5), at(6))))
	assert.Equal(t, []string{"evt"}, provider.updated)
}

func TestParseBusy_SkipsMalformedInstants(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	busy := application.ParseBusy(logger, "alice@example.com", time.RFC3339, time.UTC, []application.RawInterval{
		{Start: "2026-03-02T09:00:00Z", End: "2026-03-02T10:00:00Z"},
		{Start: "not-a-time", End: "2026-03-02T10:00:00Z"},
		{Start: "2026-03-02T11:00:00Z", End: "garbage"},
		{Start: "2026-03-02T12:00:00Z", End: "2026-03-02T12:00:00Z"},
		{Start: "2026-03-02T15:00:00+02:00", End: "2026-03-02T16:00:00+02:00"},
	})

	require.Len(t, busy, 2)
	assert.Equal(t, at(0), busy[0].Start())
	assert.Equal(t, at(4), busy[1].Start())
	assert.Contains(t, buf.String(), "invalid start")
	assert.Contains(t, buf.String(), "invalid end")
	assert.Contains(t, buf.String(), "invalid busy interval")
}
