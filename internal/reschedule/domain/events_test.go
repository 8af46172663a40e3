package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	sharedDomain "github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionEvents_CarryCalendarEventID(t *testing.T) {
	s := newSession(t, slot(1), slot(2))
	c := s.Candidates()[0]

	events := []sharedDomain.DomainEvent{
		domain.NewSessionOffered(s, now),
		domain.NewSessionCommitted(s.ID(), s.EventID(), c, now),
		domain.NewSessionExpired(s.ID(), s.EventID(), domain.ReasonTTL, now),
		domain.NewSessionCancelled(s.ID(), s.EventID(), domain.ReasonSuperseded, now),
	}
	for _, event := range events {
		assert.Equal(t, s.ID(), event.AggregateID(), event.RoutingKey())
		assert.NotEqual(t, s.ID(), event.EventID(), event.RoutingKey())

		body, err := json.Marshal(event)
		require.NoError(t, err)
		var payload struct {
			EventID string `json:"event_id"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, s.EventID(), payload.EventID, event.RoutingKey())
	}
}
