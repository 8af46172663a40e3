package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/google/uuid"
)

// Message is a domain event waiting in the outbox table. ID is assigned by
// the store on Save.
type Message struct {
	ID               int64
	EventID          uuid.UUID
	AggregateType    string
	AggregateID      uuid.UUID
	EventType        string
	RoutingKey       string
	Payload          json.RawMessage
	Metadata         json.RawMessage
	CreatedAt        time.Time
	PublishedAt      *time.Time
	NextRetryAt      *time.Time
	RetryCount       int
	LastError        *string
	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessage serializes a session event and its correlation metadata. The
// routing key doubles as the event type.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event.RoutingKey(), err)
	}
	metadata, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", event.RoutingKey(), err)
	}
	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      metadata,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

func (m *Message) IsPublished() bool { return m.PublishedAt != nil }

// IsDead reports whether the relay gave up on the message.
func (m *Message) IsDead() bool { return m.DeadLetteredAt != nil }

// eventMetadata decodes Metadata; a missing or corrupt column yields zero ids.
func (m *Message) eventMetadata() domain.EventMetadata {
	var md domain.EventMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &md)
	}
	return md
}

// RetryPolicy decides what happens after a failed publish.
type RetryPolicy struct {
	// MaxRetries counts publish attempts; zero or less dead-letters on the
	// first failure.
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// Exhausted reports whether the failure being recorded now is the last one
// the policy allows for m.
func (p RetryPolicy) Exhausted(m *Message) bool {
	return p.MaxRetries <= 0 || m.RetryCount+1 >= p.MaxRetries
}

// Backoff is Base doubled per earlier attempt and capped at Max. attempt
// starts at 1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	base, limit := p.Base, p.Max
	if base <= 0 {
		base = time.Second
	}
	if limit <= 0 {
		limit = time.Minute
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}
