package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/google/uuid"
)

// sqliteTimeLayout is fixed width so text columns sort chronologically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteAttemptRepository persists reschedule attempts in SQLite.
type SQLiteAttemptRepository struct {
	conn database.Connection
}

// NewSQLiteAttemptRepository creates a new SQLite attempt repository.
func NewSQLiteAttemptRepository(conn database.Connection) *SQLiteAttemptRepository {
	return &SQLiteAttemptRepository{conn: conn}
}

// Create stores a new attempt, joining the unit of work in ctx if any.
func (r *SQLiteAttemptRepository) Create(ctx context.Context, attempt domain.RescheduleAttempt) error {
	query := `
		INSERT INTO reschedule_attempts (
			id, session_id, user_id, event_id, attendees, candidate_index,
			success, failure_reason, new_start_time, new_end_time, attempted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	attendees, err := json.Marshal(attempt.Attendees)
	if err != nil {
		return err
	}

	_, err = database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		attempt.ID.String(),
		attempt.SessionID.String(),
		attempt.UserID.String(),
		attempt.EventID,
		string(attendees),
		attempt.CandidateIdx,
		boolToInt(attempt.Success),
		nullString(attempt.FailureReason),
		nullTime(attempt.NewStart),
		nullTime(attempt.NewEnd),
		attempt.AttemptedAt.UTC().Format(sqliteTimeLayout),
	)
	return err
}

// ListByUser returns the user's attempts, newest first.
func (r *SQLiteAttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.RescheduleAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, user_id, event_id, attendees, candidate_index,
			   success, failure_reason, new_start_time, new_end_time, attempted_at
		FROM reschedule_attempts
		WHERE user_id = ?
		ORDER BY attempted_at DESC
		LIMIT ?
	`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, userID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteAttempts(rows)
}

// ListBySession returns the attempts recorded for one session in order.
func (r *SQLiteAttemptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.RescheduleAttempt, error) {
	query := `
		SELECT id, session_id, user_id, event_id, attendees, candidate_index,
			   success, failure_reason, new_start_time, new_end_time, attempted_at
		FROM reschedule_attempts
		WHERE session_id = ?
		ORDER BY attempted_at
	`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteAttempts(rows)
}

func scanSQLiteAttempts(rows database.Rows) ([]domain.RescheduleAttempt, error) {
	attempts := make([]domain.RescheduleAttempt, 0)
	for rows.Next() {
		var attempt domain.RescheduleAttempt
		var idStr, sessionIDStr, userIDStr, attendeesJSON, attemptedAtStr string
		var success int
		var failureReason, newStartStr, newEndStr sql.NullString

		if err := rows.Scan(
			&idStr,
			&sessionIDStr,
			&userIDStr,
			&attempt.EventID,
			&attendeesJSON,
			&attempt.CandidateIdx,
			&success,
			&failureReason,
			&newStartStr,
			&newEndStr,
			&attemptedAtStr,
		); err != nil {
			return nil, err
		}

		attempt.ID, _ = uuid.Parse(idStr)
		attempt.SessionID, _ = uuid.Parse(sessionIDStr)
		attempt.UserID, _ = uuid.Parse(userIDStr)
		_ = json.Unmarshal([]byte(attendeesJSON), &attempt.Attendees)
		attempt.Success = success == 1
		attempt.FailureReason = failureReason.String
		attempt.AttemptedAt, _ = time.Parse(sqliteTimeLayout, attemptedAtStr)
		attempt.NewStart = parseNullTime(newStartStr)
		attempt.NewEnd = parseNullTime(newEndStr)

		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(sqliteTimeLayout), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
