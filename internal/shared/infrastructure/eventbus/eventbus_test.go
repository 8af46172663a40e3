package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	types  []string
	events []*eventbus.ConsumedEvent
	err    error
}

func (c *recordingConsumer) EventTypes() []string { return c.types }

func (c *recordingConsumer) Handle(_ context.Context, event *eventbus.ConsumedEvent) error {
	c.events = append(c.events, event)
	return c.err
}

func envelope(t *testing.T, routingKey string, payload any) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(eventbus.ConsumedEvent{
		EventID:       uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: "RescheduleSession",
		RoutingKey:    routingKey,
		OccurredAt:    time.Now().UTC(),
		Payload:       body,
	})
	require.NoError(t, err)
	return raw
}

func TestConsumerRegistry(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	committed := &recordingConsumer{types: []string{"reschedule.session.committed"}}
	all := &recordingConsumer{types: []string{"reschedule.session.committed", "reschedule.session.expired"}}
	registry.Register(committed)
	registry.Register(all)

	assert.Len(t, registry.Consumers("reschedule.session.committed"), 2)
	assert.Len(t, registry.Consumers("reschedule.session.expired"), 1)
	assert.Empty(t, registry.Consumers("reschedule.session.offered"))
	assert.Equal(t, []string{"reschedule.session.committed", "reschedule.session.expired"}, registry.EventTypes())

	t.Run("one failing consumer does not stop the others", func(t *testing.T) {
		committed.err = errors.New("boom")
		err := registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "reschedule.session.committed"})
		assert.ErrorContains(t, err, "boom")
		assert.Len(t, committed.events, 1)
		assert.Len(t, all.events, 1)
	})
}

func TestInProcessEventBus_Publish(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"reschedule.session.expired"}}
	bus.RegisterConsumer(consumer)

	err := bus.Publish(context.Background(), "reschedule.session.expired",
		envelope(t, "reschedule.session.expired", map[string]string{"reason": "ttl"}))
	require.NoError(t, err)

	require.Len(t, consumer.events, 1)
	var payload struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, consumer.events[0].Decode(&payload))
	assert.Equal(t, "ttl", payload.Reason)
}

func TestInProcessEventBus_SwallowsFailures(t *testing.T) {
	bus := eventbus.NewInProcessEventBus(nil)
	consumer := &recordingConsumer{types: []string{"reschedule.session.cancelled"}, err: errors.New("boom")}
	bus.RegisterConsumer(consumer)

	assert.NoError(t, bus.Publish(context.Background(), "reschedule.session.cancelled", []byte("not json")))
	assert.Empty(t, consumer.events)

	assert.NoError(t, bus.Publish(context.Background(), "reschedule.session.cancelled",
		envelope(t, "reschedule.session.cancelled", map[string]string{})))
	assert.Len(t, consumer.events, 1)
}

func TestConsumerRegistry_TopicPatterns(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	var got []string
	record := func(name string) func(context.Context, *eventbus.ConsumedEvent) error {
		return func(_ context.Context, e *eventbus.ConsumedEvent) error {
			got = append(got, name+":"+e.RoutingKey)
			return nil
		}
	}
	registry.Register(eventbus.ConsumerFunc{Types: []string{"reschedule.session.*"}, Fn: record("sessions")})
	registry.Register(eventbus.ConsumerFunc{Types: []string{"#", "reschedule.#"}, Fn: record("audit")})
	registry.Register(eventbus.ConsumerFunc{Types: []string{"reschedule.*"}, Fn: record("shallow")})

	require.NoError(t, registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "reschedule.session.committed"}))
	assert.Equal(t, []string{"sessions:reschedule.session.committed", "audit:reschedule.session.committed"}, got)
	assert.Equal(t, []string{"#", "reschedule.#", "reschedule.*", "reschedule.session.*"}, registry.EventTypes())

	assert.Len(t, registry.Consumers("reschedule"), 1, "only the audit bindings match a bare prefix")
	assert.Len(t, registry.Consumers("reschedule.session"), 2)
}

func TestNoopPublisher(t *testing.T) {
	p := eventbus.NewNoopPublisher(nil)
	assert.NoError(t, p.Publish(context.Background(), "x", nil))
	assert.NoError(t, p.Close())
}
