package commands

import (
	"context"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
)

// SweepSessionsHandler expires sessions past their TTL and drops old
// tombstones.
type SweepSessionsHandler struct {
	deps Deps
}

// NewSweepSessionsHandler creates a new SweepSessionsHandler.
func NewSweepSessionsHandler(deps Deps) *SweepSessionsHandler {
	return &SweepSessionsHandler{deps: deps.withDefaults()}
}

// Handle runs one sweep pass at the current time.
func (h *SweepSessionsHandler) Handle(ctx context.Context) (domain.SweepResult, error) {
	result, err := h.deps.Store.Sweep(ctx, h.deps.Clock.Now())
	if len(result.Expired) > 0 {
		h.deps.countClosed(result.Expired...)
		h.deps.record(ctx, "sweep", nil, result.Expired...)
		h.deps.Metrics.Counter(observability.MetricSweepExpired, int64(len(result.Expired)))
	}
	if result.Removed > 0 {
		h.deps.Metrics.Counter(observability.MetricSweepRemoved, int64(result.Removed))
	}
	if err != nil {
		return result, err
	}

	if len(result.Expired) > 0 || result.Removed > 0 {
		h.deps.Logger.InfoContext(ctx, "reschedule sessions swept",
			"expired", len(result.Expired),
			"removed", result.Removed,
		)
	}
	return result, nil
}
