package application

import (
	"context"
	"fmt"
	"sync"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultFanOut bounds concurrent per-attendee queries.
const DefaultFanOut = 4

// FanOutBusy queries reader once per attendee with at most limit calls in
// flight. The first failure cancels the rest.
func FanOutBusy(ctx context.Context, reader BusyReader, userID uuid.UUID, attendees []string, window availability.SearchWindow, limit int) (map[string][]availability.Interval, error) {
	if limit <= 0 {
		limit = DefaultFanOut
	}
	out := make(map[string][]availability.Interval, len(attendees))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, attendee := range attendees {
		g.Go(func() error {
			busy, err := reader.BusyIntervals(gctx, userID, attendee, window)
			if err != nil {
				return fmt.Errorf("busy intervals for %s: %w", attendee, err)
			}
			mu.Lock()
			out[attendee] = append(out[attendee], busy...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CollectBusy prefers the reader's batch query and fans out otherwise.
func CollectBusy(ctx context.Context, reader BusyReader, userID uuid.UUID, attendees []string, window availability.SearchWindow) (map[string][]availability.Interval, error) {
	if batch, ok := reader.(BatchBusyReader); ok {
		return batch.BatchBusyIntervals(ctx, userID, attendees, window)
	}
	return FanOutBusy(ctx, reader, userID, attendees, window, DefaultFanOut)
}
