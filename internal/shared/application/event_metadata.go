package application

import (
	"context"

	"github.com/felixgeelhaar/reslot/internal/shared/domain"
	"github.com/felixgeelhaar/reslot/pkg/observability"
	"github.com/google/uuid"
)

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata creates command-scoped metadata for domain events.
func NewEventMetadata(userID uuid.UUID) domain.EventMetadata {
	return domain.EventMetadata{
		CorrelationID: uuid.New(),
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// EventMetadataFromContext reuses the request correlation ID when ctx
// carries a valid one, so relayed events can be joined with request logs.
func EventMetadataFromContext(ctx context.Context, userID uuid.UUID) domain.EventMetadata {
	metadata := NewEventMetadata(userID)
	if id, err := uuid.Parse(observability.CorrelationIDFromContext(ctx)); err == nil {
		metadata.CorrelationID = id
	}
	return metadata
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}
