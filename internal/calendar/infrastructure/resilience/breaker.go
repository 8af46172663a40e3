// Package resilience guards calendar providers with circuit breakers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	calendarApp "github.com/felixgeelhaar/reslot/internal/calendar/application"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned while the breaker rejects calls to a provider.
var ErrCircuitOpen = errors.New("calendar provider circuit open")

// BreakerConfig configures a provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the breaker settings used by the binaries.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
	}
}

// Provider wraps a calendar provider with a circuit breaker. Domain outcomes
// (missing events, read-only feeds, cancelled contexts) do not trip it.
type Provider struct {
	name    string
	inner   calendarApp.Provider
	batch   calendarApp.BatchBusyReader
	breaker *gobreaker.CircuitBreaker[any]
	metrics observability.Metrics
	logger  *slog.Logger
}

// Wrap returns inner guarded by a breaker named name.
func Wrap(name string, inner calendarApp.Provider, cfg BreakerConfig, metrics observability.Metrics, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.FailureThreshold == 0 {
		cfg = DefaultBreakerConfig()
	}

	p := &Provider{name: name, inner: inner, metrics: metrics, logger: logger}
	if batch, ok := inner.(calendarApp.BatchBusyReader); ok {
		p.batch = batch
	} else {
		p.batch = calendarApp.NewCompositeReader(inner)
	}

	p.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrEventNotFound) ||
				errors.Is(err, domain.ErrReadOnlyProvider) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Gauge(observability.MetricBreakerState, float64(to), observability.T("provider", name))
		},
	})
	return p
}

// State reports the breaker state.
func (p *Provider) State() gobreaker.State {
	return p.breaker.State()
}

func (p *Provider) execute(operation string, fn func() (any, error)) (any, error) {
	result, err := p.breaker.Execute(fn)
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "open"
		err = fmt.Errorf("%w: %s", ErrCircuitOpen, p.name)
	case err != nil:
		outcome = "error"
	}
	p.metrics.Counter(observability.MetricProviderCalls, 1,
		observability.T("provider", p.name),
		observability.T("operation", operation),
		observability.T("outcome", outcome),
	)
	return result, err
}

// BusyIntervals implements calendarApp.BusyReader.
func (p *Provider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error) {
	res, err := p.execute("busy", func() (any, error) {
		return p.inner.BusyIntervals(ctx, userID, attendee, window)
	})
	if err != nil {
		return nil, err
	}
	return res.([]availability.Interval), nil
}

// BatchBusyIntervals implements calendarApp.BatchBusyReader.
func (p *Provider) BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (map[string][]availability.Interval, error) {
	res, err := p.execute("batch_busy", func() (any, error) {
		return p.batch.BatchBusyIntervals(ctx, userID, attendees, window)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string][]availability.Interval), nil
}

// GetEvent implements calendarApp.EventLookup.
func (p *Provider) GetEvent(ctx context.Context, userID uuid.UUID, eventID string) (*domain.Event, error) {
	res, err := p.execute("get_event", func() (any, error) {
		return p.inner.GetEvent(ctx, userID, eventID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Event), nil
}

// UpdateEventTime implements calendarApp.EventWriter.
func (p *Provider) UpdateEventTime(ctx context.Context, userID uuid.UUID, eventID string, slot availability.Interval) error {
	_, err := p.execute("update_event", func() (any, error) {
		return nil, p.inner.UpdateEventTime(ctx, userID, eventID, slot)
	})
	return err
}
