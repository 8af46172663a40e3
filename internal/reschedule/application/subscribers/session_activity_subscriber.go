package subscribers

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTrackedSessions bounds how many offered sessions are remembered
// while waiting for their outcome.
const DefaultTrackedSessions = 4096

// sessionPayload holds the fields shared by every session lifecycle event.
type sessionPayload struct {
	SessionID  uuid.UUID `json:"session_id"`
	EventID    string    `json:"event_id"`
	Candidates int       `json:"candidates"`
	Index      int       `json:"index"`
	Reason     string    `json:"reason"`
}

// SessionActivitySubscriber consumes relayed session lifecycle events. It
// counts them by routing key and measures the time from offer to commit.
type SessionActivitySubscriber struct {
	offered *lru.Cache[uuid.UUID, time.Time]
	metrics observability.Metrics
	logger  *slog.Logger
}

// NewSessionActivitySubscriber creates a subscriber tracking up to size
// offered sessions.
func NewSessionActivitySubscriber(size int, metrics observability.Metrics, logger *slog.Logger) (*SessionActivitySubscriber, error) {
	if size <= 0 {
		size = DefaultTrackedSessions
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	offered, err := lru.New[uuid.UUID, time.Time](size)
	if err != nil {
		return nil, err
	}
	return &SessionActivitySubscriber{offered: offered, metrics: metrics, logger: logger}, nil
}

// EventTypes returns the event types this subscriber handles.
func (s *SessionActivitySubscriber) EventTypes() []string {
	return []string{
		domain.RoutingKeySessionOffered,
		domain.RoutingKeySessionCommitted,
		domain.RoutingKeySessionExpired,
		domain.RoutingKeySessionCancelled,
	}
}

// Handle processes an event. Malformed payloads are logged and dropped.
func (s *SessionActivitySubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	s.metrics.Counter(observability.MetricEventsConsumed, 1, observability.T("routing_key", event.RoutingKey))

	var payload sessionPayload
	if err := event.Decode(&payload); err != nil {
		s.logger.WarnContext(ctx, "invalid session event payload",
			"routing_key", event.RoutingKey,
			"event_id", event.EventID,
			"error", err,
		)
		return nil
	}
	if payload.SessionID == uuid.Nil {
		payload.SessionID = event.AggregateID
	}

	switch event.RoutingKey {
	case domain.RoutingKeySessionOffered:
		if payload.Candidates > 0 {
			s.offered.Add(payload.SessionID, event.OccurredAt)
		}
	case domain.RoutingKeySessionCommitted:
		if offeredAt, ok := s.offered.Peek(payload.SessionID); ok {
			s.offered.Remove(payload.SessionID)
			if elapsed := event.OccurredAt.Sub(offeredAt); elapsed >= 0 {
				s.metrics.Timing(observability.MetricTimeToCommit, elapsed)
			}
		}
		s.logger.InfoContext(ctx, "meeting rescheduled",
			"session_id", payload.SessionID,
			"event_id", payload.EventID,
			"index", payload.Index,
		)
	case domain.RoutingKeySessionExpired, domain.RoutingKeySessionCancelled:
		s.offered.Remove(payload.SessionID)
		s.logger.DebugContext(ctx, "reschedule session closed",
			"session_id", payload.SessionID,
			"routing_key", event.RoutingKey,
			"reason", payload.Reason,
		)
	}
	return nil
}

// Pending returns how many offered sessions await an outcome.
func (s *SessionActivitySubscriber) Pending() int {
	return s.offered.Len()
}
