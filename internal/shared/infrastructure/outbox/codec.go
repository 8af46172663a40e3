package outbox

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// codec covers what differs between backends: placeholders, how uuids,
// times and JSON documents are stored, and reading a row back.
type codec interface {
	rebind(query string) string
	uuid(id uuid.UUID) any
	time(t time.Time) any
	document(b []byte) any
	optionalDocument(b []byte) any
	scan(row database.Row) (*Message, error)
}

func codecFor(driver database.Driver) (codec, error) {
	switch driver {
	case database.DriverPostgres:
		return postgresCodec{}, nil
	case database.DriverSQLite:
		return sqliteCodec{}, nil
	}
	return nil, fmt.Errorf("outbox: unsupported driver %s", driver)
}

type postgresCodec struct{}

// rebind numbers ? placeholders as $1, $2, ...
func (postgresCodec) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func (postgresCodec) uuid(id uuid.UUID) any { return id }
func (postgresCodec) time(t time.Time) any  { return t }
func (postgresCodec) document(b []byte) any { return b }

func (postgresCodec) optionalDocument(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func (postgresCodec) scan(row database.Row) (*Message, error) {
	var msg Message
	var payload, metadata []byte
	err := row.Scan(
		&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID,
		&msg.EventType, &msg.RoutingKey, &payload, &metadata,
		&msg.CreatedAt, &msg.PublishedAt, &msg.NextRetryAt, &msg.RetryCount,
		&msg.LastError, &msg.DeadLetteredAt, &msg.DeadLetterReason,
	)
	if err != nil {
		return nil, err
	}
	msg.Payload, msg.Metadata = payload, metadata
	return &msg, nil
}

// sqliteTimeLayout is fixed width so text timestamps compare correctly.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteCodec struct{}

func (sqliteCodec) rebind(query string) string { return query }
func (sqliteCodec) uuid(id uuid.UUID) any      { return id.String() }
func (sqliteCodec) time(t time.Time) any       { return t.UTC().Format(sqliteTimeLayout) }
func (sqliteCodec) document(b []byte) any      { return string(b) }

func (sqliteCodec) optionalDocument(b []byte) any {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

func (sqliteCodec) scan(row database.Row) (*Message, error) {
	var (
		msg                               Message
		eventID, aggregateID, payload, at string
		metadata, lastError, deadReason   sql.NullString
		publishedAt, nextRetryAt, deadAt  sql.NullString
	)
	err := row.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID,
		&msg.EventType, &msg.RoutingKey, &payload, &metadata,
		&at, &publishedAt, &nextRetryAt, &msg.RetryCount,
		&lastError, &deadAt, &deadReason,
	)
	if err != nil {
		return nil, err
	}
	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("event id: %w", err)
	}
	if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("aggregate id: %w", err)
	}
	if msg.CreatedAt, err = time.Parse(sqliteTimeLayout, at); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	msg.Payload = []byte(payload)
	if metadata.Valid {
		msg.Metadata = []byte(metadata.String)
	}
	msg.PublishedAt = sqliteOptionalTime(publishedAt)
	msg.NextRetryAt = sqliteOptionalTime(nextRetryAt)
	msg.DeadLetteredAt = sqliteOptionalTime(deadAt)
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}
	return &msg, nil
}

func sqliteOptionalTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
