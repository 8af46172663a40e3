package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CommitFunc performs the external write for a chosen candidate. The store
// commits the session only when it returns nil.
type CommitFunc func(ctx context.Context, session *Session, candidate Candidate) error

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Expired []*Session
	Removed int
}

// SessionStore holds live sessions. Operations on one session are serialized;
// at most one Select commits it.
type SessionStore interface {
	// Create stores a session. An older open session for the same event is
	// cancelled as superseded and returned.
	Create(ctx context.Context, session *Session) (superseded *Session, err error)

	// Get returns ErrSessionNotFound for unknown or removed sessions.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Select resolves index and runs commit while holding the session. A commit
	// error wrapping ErrEventGone expires the session.
	Select(ctx context.Context, id uuid.UUID, index int, commit CommitFunc) (*Session, Candidate, error)

	// Cancel closes an open session.
	Cancel(ctx context.Context, id uuid.UUID, reason CloseReason) (*Session, error)

	// Sweep expires open sessions past their TTL and removes sessions that
	// have been closed for longer than the retention period.
	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
}

// Clock abstracts time for stores and handlers.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
