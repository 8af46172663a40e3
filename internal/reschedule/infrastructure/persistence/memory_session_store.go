package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
)

// StoreOptions configures session stores.
type StoreOptions struct {
	// Retention keeps closed sessions around so late selections get
	// ErrSessionClosed instead of ErrSessionNotFound.
	Retention time.Duration
	Clock     domain.Clock
	Logger    *slog.Logger
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.Clock == nil {
		o.Clock = domain.SystemClock{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Retention < 0 {
		o.Retention = 0
	}
	return o
}

type sessionEntry struct {
	mu      sync.Mutex
	session *domain.Session
	removed bool
}

// MemorySessionStore keeps sessions in process memory. The store mutex guards
// the maps only; each session has its own mutex, which Select holds across
// the external write. The store mutex is never acquired while an entry mutex
// is held by Create.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
	latest   map[string]uuid.UUID
	opts     StoreOptions
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore(opts StoreOptions) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID]*sessionEntry),
		latest:   make(map[string]uuid.UUID),
		opts:     opts.withDefaults(),
	}
}

func eventKey(s *domain.Session) string {
	return s.UserID().String() + "/" + s.EventID()
}

// Create stores a copy of session and cancels the previous open session for
// the same event.
func (m *MemorySessionStore) Create(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := eventKey(session)
	m.mu.Lock()
	prevID, hadPrev := m.latest[key]
	m.sessions[session.ID()] = &sessionEntry{session: session.Copy()}
	m.latest[key] = session.ID()
	prev := m.sessions[prevID]
	m.mu.Unlock()

	if !hadPrev || prev == nil || prevID == session.ID() {
		return nil, nil
	}

	prev.mu.Lock()
	defer prev.mu.Unlock()
	if prev.removed {
		return nil, nil
	}
	if err := prev.session.Cancel(domain.ReasonSuperseded, m.opts.Clock.Now()); err != nil {
		if errors.Is(err, domain.ErrSessionClosed) {
			return nil, nil
		}
		return nil, err
	}
	m.opts.Logger.Debug("superseded reschedule session",
		"session_id", prevID,
		"by", session.ID(),
		"event_id", session.EventID(),
	)
	return prev.session.Detach(), nil
}

// Get returns a copy of the session.
func (m *MemorySessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	entry, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return nil, domain.ErrSessionNotFound
	}
	return entry.session.Copy(), nil
}

// Select resolves index and runs commit under the session lock. The returned
// session carries the events recorded by this call.
func (m *MemorySessionStore) Select(ctx context.Context, id uuid.UUID, index int, commit domain.CommitFunc) (*domain.Session, domain.Candidate, error) {
	entry, err := m.entry(id)
	if err != nil {
		return nil, domain.Candidate{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return nil, domain.Candidate{}, domain.ErrSessionNotFound
	}

	return selectLocked(ctx, entry.session, index, commit, m.opts.Clock)
}

// selectLocked is shared by stores that have already serialized access.
func selectLocked(ctx context.Context, session *domain.Session, index int, commit domain.CommitFunc, clock domain.Clock) (*domain.Session, domain.Candidate, error) {
	candidate, err := session.Select(index, clock.Now())
	if err != nil {
		return session.Detach(), domain.Candidate{}, err
	}

	if commit != nil {
		if err := commit(ctx, session.Copy(), candidate); err != nil {
			if errors.Is(err, domain.ErrEventGone) {
				_ = session.Expire(domain.ReasonEventGone, clock.Now())
			}
			return session.Detach(), domain.Candidate{}, err
		}
	}

	if err := session.Commit(index, clock.Now()); err != nil {
		return session.Detach(), domain.Candidate{}, err
	}
	return session.Detach(), candidate, nil
}

// Cancel closes an open session.
func (m *MemorySessionStore) Cancel(ctx context.Context, id uuid.UUID, reason domain.CloseReason) (*domain.Session, error) {
	entry, err := m.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return nil, domain.ErrSessionNotFound
	}
	if err := entry.session.Cancel(reason, m.opts.Clock.Now()); err != nil {
		return entry.session.Copy(), err
	}
	return entry.session.Detach(), nil
}

// Sweep expires open sessions past their TTL and drops closed sessions older
// than the retention period. A session whose lock is held by an in-flight
// Select is skipped until the next pass.
func (m *MemorySessionStore) Sweep(ctx context.Context, now time.Time) (domain.SweepResult, error) {
	m.mu.Lock()
	entries := make(map[uuid.UUID]*sessionEntry, len(m.sessions))
	for id, e := range m.sessions {
		entries[id] = e
	}
	m.mu.Unlock()

	var result domain.SweepResult
	var drop []uuid.UUID
	for id, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !entry.mu.TryLock() {
			continue
		}
		s := entry.session
		if s.TTLElapsed(now) {
			if err := s.Expire(domain.ReasonTTL, now); err == nil {
				result.Expired = append(result.Expired, s.Detach())
			}
		} else if closed := s.ClosedAt(); closed != nil && !now.Before(closed.Add(m.opts.Retention)) {
			entry.removed = true
			drop = append(drop, id)
		}
		entry.mu.Unlock()
	}

	if len(drop) > 0 {
		m.mu.Lock()
		for _, id := range drop {
			entry := m.sessions[id]
			if entry == nil {
				continue
			}
			key := eventKey(entry.session)
			if m.latest[key] == id {
				delete(m.latest, key)
			}
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		result.Removed = len(drop)
	}

	return result, nil
}

// Len returns the number of stored sessions, including closed ones.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) entry(id uuid.UUID) (*sessionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return entry, nil
}
