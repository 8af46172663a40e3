package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact an aggregate records; the outbox relays it under its
// routing key.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata ties an event to the request and user behind it.
type EventMetadata struct {
	CorrelationID uuid.UUID
	CausationID   uuid.UUID
	UserID        uuid.UUID
}

// BaseEvent carries the DomainEvent fields; concrete events embed it and add
// their payload.
type BaseEvent struct {
	id        uuid.UUID
	aggregate uuid.UUID
	kind      string
	key       string
	at        time.Time
	meta      EventMetadata
}

// NewBaseEventAt stamps a fresh event id and records at in UTC.
func NewBaseEventAt(aggregateID uuid.UUID, aggregateType, routingKey string, at time.Time) BaseEvent {
	return BaseEvent{
		id:        uuid.New(),
		aggregate: aggregateID,
		kind:      aggregateType,
		key:       routingKey,
		at:        at.UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.id }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.aggregate }
func (e BaseEvent) AggregateType() string   { return e.kind }
func (e BaseEvent) RoutingKey() string      { return e.key }
func (e BaseEvent) OccurredAt() time.Time   { return e.at }
func (e BaseEvent) Metadata() EventMetadata { return e.meta }

// SetMetadata only sticks on events recorded by pointer.
func (e *BaseEvent) SetMetadata(meta EventMetadata) { e.meta = meta }
