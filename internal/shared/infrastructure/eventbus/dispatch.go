package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// ConsumerFunc adapts a function to EventConsumer.
type ConsumerFunc struct {
	Types []string
	Fn    func(ctx context.Context, event *ConsumedEvent) error
}

func (c ConsumerFunc) EventTypes() []string { return c.Types }

func (c ConsumerFunc) Handle(ctx context.Context, event *ConsumedEvent) error {
	return c.Fn(ctx, event)
}

// ConsumerRegistry routes events to consumers. Event types are AMQP topic
// patterns, so "reschedule.session.*" and "#" bind the same way they would on
// the broker.
type ConsumerRegistry struct {
	mu       sync.RWMutex
	bindings []binding
	seq      int
	logger   *slog.Logger
}

type binding struct {
	pattern string
	// seq identifies the Register call; consumers need not be comparable.
	seq      int
	consumer EventConsumer
}

// NewConsumerRegistry creates an empty registry.
func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{logger: logger}
}

// Register binds consumer to each of its event types.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	for _, pattern := range consumer.EventTypes() {
		r.bindings = append(r.bindings, binding{pattern: pattern, seq: r.seq, consumer: consumer})
	}
}

// Consumers returns, in registration order, each consumer bound to a pattern
// matching routingKey. A consumer bound twice appears once.
func (r *ConsumerRegistry) Consumers(routingKey string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		out  []EventConsumer
		seen = make(map[int]bool)
	)
	for _, b := range r.bindings {
		if !seen[b.seq] && topicMatch(b.pattern, routingKey) {
			seen[b.seq] = true
			out = append(out, b.consumer)
		}
	}
	return out
}

// EventTypes lists the bound patterns, sorted and deduplicated.
func (r *ConsumerRegistry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.bindings))
	for _, b := range r.bindings {
		types = append(types, b.pattern)
	}
	slices.Sort(types)
	return slices.Compact(types)
}

// Dispatch hands event to every matching consumer. A failing consumer does
// not stop the rest; failures are joined.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	var errs []error
	for _, c := range r.Consumers(event.RoutingKey) {
		if err := c.Handle(ctx, event); err != nil {
			r.logger.ErrorContext(ctx, "consumer failed",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// topicMatch applies AMQP topic rules: words split on ".", "*" matches one
// word and "#" matches zero or more.
func topicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}

// InProcessEventBus is the Publisher used when no broker is configured: the
// relay hands each envelope straight to local consumers.
type InProcessEventBus struct {
	registry *ConsumerRegistry
	logger   *slog.Logger
	// serializes delivery so consumers see events in relay order
	mu sync.Mutex
}

// NewInProcessEventBus creates a bus with an empty registry.
func NewInProcessEventBus(logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessEventBus{registry: NewConsumerRegistry(logger), logger: logger}
}

func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.registry.Register(consumer)
}

func (b *InProcessEventBus) Registry() *ConsumerRegistry { return b.registry }

// Publish decodes the envelope and dispatches it. Undecodable envelopes and
// consumer failures are logged, never returned, so the outbox does not
// redeliver to local consumers.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	var event ConsumedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.ErrorContext(ctx, "undecodable event envelope", "routing_key", routingKey, "error", err)
		return nil
	}
	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	return b.PublishConsumedEvent(ctx, &event)
}

// PublishConsumedEvent dispatches an already decoded envelope.
func (b *InProcessEventBus) PublishConsumedEvent(ctx context.Context, event *ConsumedEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()
	err := b.registry.Dispatch(ctx, event)
	b.logger.DebugContext(ctx, "event dispatched",
		"routing_key", event.RoutingKey,
		"event_id", event.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
		"failed", err != nil,
	)
	return nil
}

func (b *InProcessEventBus) Close() error { return nil }
