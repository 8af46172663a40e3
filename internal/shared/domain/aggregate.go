package domain

import (
	"time"

	"github.com/google/uuid"
)

// Entity has an identity and audit timestamps, always in UTC.
type Entity interface {
	ID() uuid.UUID
	CreatedAt() time.Time
	UpdatedAt() time.Time
}

// BaseEntity is embedded by entities.
type BaseEntity struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
}

// NewBaseEntityAt assigns a fresh id created at the given instant.
func NewBaseEntityAt(at time.Time) BaseEntity {
	return BaseEntity{id: uuid.New(), createdAt: at.UTC(), updatedAt: at.UTC()}
}

// RehydrateBaseEntity restores a stored entity.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt, updatedAt: updatedAt}
}

func (e BaseEntity) ID() uuid.UUID        { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

// TouchAt moves updatedAt; the clock is injected so sessions stay testable.
func (e *BaseEntity) TouchAt(at time.Time) {
	e.updatedAt = at.UTC()
}

// AggregateRoot is an entity that records domain events for the outbox and
// carries a version for optimistic concurrency in the session store.
type AggregateRoot interface {
	Entity
	DomainEvents() []DomainEvent
	ClearDomainEvents()
	Version() int
}

// BaseAggregateRoot is embedded by aggregates.
type BaseAggregateRoot struct {
	BaseEntity
	events  []DomainEvent
	version int
}

// NewBaseAggregateRootAt starts a new aggregate at version 0.
func NewBaseAggregateRootAt(at time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: NewBaseEntityAt(at)}
}

// RehydrateBaseAggregateRoot restores a stored aggregate with no pending events.
func RehydrateBaseAggregateRoot(entity BaseEntity, version int) BaseAggregateRoot {
	return BaseAggregateRoot{BaseEntity: entity, version: version}
}

// DomainEvents returns the events recorded since the last clear, oldest first.
func (a *BaseAggregateRoot) DomainEvents() []DomainEvent {
	return append([]DomainEvent(nil), a.events...)
}

func (a *BaseAggregateRoot) ClearDomainEvents() { a.events = nil }

func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.events = append(a.events, event)
}

func (a *BaseAggregateRoot) Version() int { return a.version }

// IncrementVersion is called once per accepted state change.
func (a *BaseAggregateRoot) IncrementVersion() { a.version++ }
