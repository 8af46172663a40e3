package outbox

import (
	"context"
	"time"
)

// Repository stores outbox messages. Save and SaveBatch join a transaction
// bound to ctx so events commit together with the state that raised them.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	// SaveBatch is all or nothing.
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns messages that are neither published nor dead and
	// whose retry time has passed, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)
	GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes published messages older than the retention window
	// and returns how many went.
	DeleteOld(ctx context.Context, olderThanDays int) (int64, error)
}
