package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
)

const selectMessages = `
	SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	       payload, metadata, created_at, published_at, next_retry_at, retry_count,
	       last_error, dead_lettered_at, dead_letter_reason
	FROM outbox`

// pending matches messages that are neither delivered nor dead and whose
// retry time, if any, has passed.
const pending = `
	WHERE published_at IS NULL
	  AND dead_lettered_at IS NULL
	  AND (next_retry_at IS NULL OR next_retry_at <= ?)`

// SQLRepository implements Repository on either database backend. Statements
// are written with ? placeholders and rebound by the backend's codec.
type SQLRepository struct {
	conn  database.Connection
	codec codec
	now   func() time.Time
}

func NewSQLRepository(conn database.Connection) (*SQLRepository, error) {
	c, err := codecFor(conn.Driver())
	if err != nil {
		return nil, err
	}
	return &SQLRepository{conn: conn, codec: c, now: time.Now}, nil
}

func (r *SQLRepository) exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	return database.ExecutorFromContext(ctx, r.conn).Exec(ctx, r.codec.rebind(query), args...)
}

func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	const query = `
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	c := r.codec
	return database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, c.rebind(query),
		c.uuid(msg.EventID),
		msg.AggregateType,
		c.uuid(msg.AggregateID),
		msg.EventType,
		msg.RoutingKey,
		c.document(msg.Payload),
		c.optionalDocument(msg.Metadata),
		c.time(msg.CreatedAt),
	).Scan(&msg.ID)
}

// SaveBatch opens a transaction when ctx carries none.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return database.RunInTx(ctx, r.conn, func(ctx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(ctx, msg); err != nil {
				return fmt.Errorf("save outbox message %s: %w", msg.EventID, err)
			}
		}
		return nil
	})
}

func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	return r.list(ctx, selectMessages+pending+`
		ORDER BY created_at, id
		LIMIT ?`,
		r.codec.time(r.now()), limit)
}

// GetFailed returns pending messages that failed at least once and have
// retries left.
func (r *SQLRepository) GetFailed(ctx context.Context, maxRetries, limit int) ([]*Message, error) {
	return r.list(ctx, selectMessages+pending+`
		  AND retry_count > 0
		  AND retry_count < ?
		ORDER BY created_at, id
		LIMIT ?`,
		r.codec.time(r.now()), maxRetries, limit)
}

func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx,
		`UPDATE outbox SET published_at = ?, dead_lettered_at = NULL WHERE id = ?`,
		r.codec.time(r.now()), id)
	return err
}

func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx, `
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		errMsg, r.codec.time(nextRetryAt), id)
	return err
}

func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx,
		`UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`,
		r.codec.time(r.now()), reason, id)
	return err
}

func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`,
		r.codec.time(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *SQLRepository) list(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, r.codec.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := r.codec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
