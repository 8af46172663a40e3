package application

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/calendar/domain"
	"github.com/google/uuid"
)

// ProviderFactory builds a Provider from the process configuration.
type ProviderFactory func(ctx context.Context) (Provider, error)

// ProviderRegistry maps provider types to factories. A successfully built
// provider is kept and handed out again; a failed build is retried.
type ProviderRegistry struct {
	mu        sync.Mutex
	factories map[domain.ProviderType]ProviderFactory
	built     map[domain.ProviderType]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		factories: make(map[domain.ProviderType]ProviderFactory),
		built:     make(map[domain.ProviderType]Provider),
	}
}

// Register replaces any factory and built instance for provider.
func (r *ProviderRegistry) Register(provider domain.ProviderType, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = factory
	delete(r.built, provider)
}

func (r *ProviderRegistry) Create(ctx context.Context, provider domain.ProviderType) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.built[provider]; ok {
		return p, nil
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no provider registered for %q", domain.ErrUnknownProvider, provider)
	}
	p, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	r.built[provider] = p
	return p, nil
}

func (r *ProviderRegistry) HasProvider(provider domain.ProviderType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.factories[provider]
	return ok
}

// SupportedProviders lists the registered provider types, sorted.
func (r *ProviderRegistry) SupportedProviders() []domain.ProviderType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// CompositeReader unions the busy sets several readers report for an attendee.
type CompositeReader struct {
	readers []BusyReader
}

// NewCompositeReader composes readers; nil entries are ignored.
func NewCompositeReader(readers ...BusyReader) *CompositeReader {
	c := &CompositeReader{}
	for _, r := range readers {
		if r != nil {
			c.readers = append(c.readers, r)
		}
	}
	return c
}

// BusyIntervals fails when any reader fails; a partial busy set would offer
// slots that are not actually free.
func (c *CompositeReader) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error) {
	var out []availability.Interval
	for _, r := range c.readers {
		busy, err := r.BusyIntervals(ctx, userID, attendee, window)
		if err != nil {
			return nil, fmt.Errorf("busy intervals for %s: %w", attendee, err)
		}
		out = append(out, busy...)
	}
	return out, nil
}

// BatchBusyIntervals uses each reader's batch query when it has one.
func (c *CompositeReader) BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (map[string][]availability.Interval, error) {
	out := make(map[string][]availability.Interval, len(attendees))
	for _, r := range c.readers {
		if batch, ok := r.(BatchBusyReader); ok {
			res, err := batch.BatchBusyIntervals(ctx, userID, attendees, window)
			if err != nil {
				return nil, err
			}
			for attendee, busy := range res {
				out[attendee] = append(out[attendee], busy...)
			}
			continue
		}
		res, err := FanOutBusy(ctx, r, userID, attendees, window, DefaultFanOut)
		if err != nil {
			return nil, err
		}
		for attendee, busy := range res {
			out[attendee] = append(out[attendee], busy...)
		}
	}
	return out, nil
}

type overlayProvider struct {
	Provider
	reader *CompositeReader
}

func (o overlayProvider) BusyIntervals(ctx context.Context, userID uuid.UUID, attendee string, window availability.SearchWindow) ([]availability.Interval, error) {
	return o.reader.BusyIntervals(ctx, userID, attendee, window)
}

func (o overlayProvider) BatchBusyIntervals(ctx context.Context, userID uuid.UUID, attendees []string, window availability.SearchWindow) (map[string][]availability.Interval, error) {
	return o.reader.BatchBusyIntervals(ctx, userID, attendees, window)
}

// WithBusyOverlay returns p with the busy sets of overlays added to its own.
// Event lookups and writes still go to p.
func WithBusyOverlay(p Provider, logger *slog.Logger, overlays ...BusyReader) Provider {
	if len(overlays) == 0 {
		return p
	}
	if logger != nil {
		logger.Debug("calendar busy overlay enabled", "overlays", len(overlays))
	}
	readers := append([]BusyReader{p}, overlays...)
	return overlayProvider{Provider: p, reader: NewCompositeReader(readers...)}
}
