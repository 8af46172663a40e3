package persistence

import (
	"context"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresAttemptRepository persists reschedule attempts in PostgreSQL.
type PostgresAttemptRepository struct {
	conn database.Connection
}

// NewPostgresAttemptRepository creates a new repository.
func NewPostgresAttemptRepository(conn database.Connection) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{conn: conn}
}

// Create stores a new attempt, joining the unit of work in ctx if any.
func (r *PostgresAttemptRepository) Create(ctx context.Context, attempt domain.RescheduleAttempt) error {
	query := `
		INSERT INTO reschedule_attempts (
			id, session_id, user_id, event_id, attendees, candidate_index,
			success, failure_reason, new_start_time, new_end_time, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	attendees := attempt.Attendees
	if attendees == nil {
		attendees = []string{}
	}

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		attempt.ID,
		attempt.SessionID,
		attempt.UserID,
		attempt.EventID,
		pq.Array(attendees),
		attempt.CandidateIdx,
		attempt.Success,
		attempt.FailureReason,
		attempt.NewStart,
		attempt.NewEnd,
		attempt.AttemptedAt,
	)
	return err
}

// ListByUser returns the user's attempts, newest first.
func (r *PostgresAttemptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.RescheduleAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, user_id, event_id, attendees, candidate_index,
			   success, failure_reason, new_start_time, new_end_time, attempted_at
		FROM reschedule_attempts
		WHERE user_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresAttempts(rows)
}

// ListBySession returns the attempts recorded for one session in order.
func (r *PostgresAttemptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.RescheduleAttempt, error) {
	query := `
		SELECT id, session_id, user_id, event_id, attendees, candidate_index,
			   success, failure_reason, new_start_time, new_end_time, attempted_at
		FROM reschedule_attempts
		WHERE session_id = $1
		ORDER BY attempted_at
	`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPostgresAttempts(rows)
}

func scanPostgresAttempts(rows database.Rows) ([]domain.RescheduleAttempt, error) {
	attempts := make([]domain.RescheduleAttempt, 0)
	for rows.Next() {
		var attempt domain.RescheduleAttempt
		if err := rows.Scan(
			&attempt.ID,
			&attempt.SessionID,
			&attempt.UserID,
			&attempt.EventID,
			&attempt.Attendees,
			&attempt.CandidateIdx,
			&attempt.Success,
			&attempt.FailureReason,
			&attempt.NewStart,
			&attempt.NewEnd,
			&attempt.AttemptedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}
