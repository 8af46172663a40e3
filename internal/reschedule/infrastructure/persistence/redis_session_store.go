package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionBusy is returned when the session lock could not be taken in time.
var ErrSessionBusy = errors.New("reschedule session is busy")

// RedisStoreOptions extends StoreOptions with lock tuning.
type RedisStoreOptions struct {
	StoreOptions
	// Prefix namespaces every key. Defaults to "reslot".
	Prefix string
	// LockTTL bounds how long a lock is held. Select cancels the calendar
	// write before the lock can lapse.
	LockTTL time.Duration
	// LockWait bounds how long Select waits for a busy session.
	LockWait time.Duration
}

// RedisSessionStore shares sessions between processes. Keys:
//
//	{prefix}:session:{id}            JSON snapshot
//	{prefix}:event:{user}:{event}    newest session id for an event
//	{prefix}:lock:{id}               per-session lock token
//	{prefix}:lock:event:{user}:{event}  serializes Create per event
//	{prefix}:open                    sorted set of open ids scored by expiry
type RedisSessionStore struct {
	client *redis.Client
	opts   RedisStoreOptions
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisSessionStore creates a store backed by client.
func NewRedisSessionStore(client *redis.Client, opts RedisStoreOptions) *RedisSessionStore {
	opts.StoreOptions = opts.StoreOptions.withDefaults()
	if opts.Prefix == "" {
		opts.Prefix = "reslot"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 10 * time.Second
	}
	return &RedisSessionStore{client: client, opts: opts}
}

func (r *RedisSessionStore) sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:session:%s", r.opts.Prefix, id)
}

func (r *RedisSessionStore) eventKey(s *domain.Session) string {
	return fmt.Sprintf("%s:event:%s:%s", r.opts.Prefix, s.UserID(), s.EventID())
}

func (r *RedisSessionStore) lockKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:lock:%s", r.opts.Prefix, id)
}

func (r *RedisSessionStore) eventLockKey(s *domain.Session) string {
	return fmt.Sprintf("%s:lock:event:%s:%s", r.opts.Prefix, s.UserID(), s.EventID())
}

// commitTimeout leaves a fifth of LockTTL, at most two seconds, to record
// the outcome after the write returns.
func (r *RedisSessionStore) commitTimeout() time.Duration {
	margin := min(r.opts.LockTTL/5, 2*time.Second)
	return r.opts.LockTTL - margin
}

func (r *RedisSessionStore) openKey() string {
	return r.opts.Prefix + ":open"
}

// Create stores the session and supersedes the previous open one for the
// event. Creates for one event are serialized. The previous session is
// cancelled in the same transaction that publishes the new one, so a failed
// supersede stores nothing.
func (r *RedisSessionStore) Create(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	var superseded *domain.Session
	err := r.withLock(ctx, r.eventLockKey(session), r.opts.LockWait, func() error {
		prev, err := r.client.Get(ctx, r.eventKey(session)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("lookup previous session: %w", err)
		}
		prevID, parseErr := uuid.Parse(prev)
		if prev == "" || parseErr != nil || prevID == session.ID() {
			return r.save(ctx, session, true)
		}

		return r.withLock(ctx, r.lockKey(prevID), r.opts.LockWait, func() error {
			old, err := r.load(ctx, prevID)
			if errors.Is(err, domain.ErrSessionNotFound) {
				return r.save(ctx, session, true)
			}
			if err != nil {
				return err
			}
			if err := old.Cancel(domain.ReasonSuperseded, r.opts.Clock.Now()); errors.Is(err, domain.ErrSessionClosed) {
				return r.save(ctx, session, true)
			} else if err != nil {
				return err
			}
			if err := r.saveBoth(ctx, session, old); err != nil {
				return err
			}
			superseded = old
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return superseded, nil
}

// Get loads a session snapshot.
func (r *RedisSessionStore) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return r.load(ctx, id)
}

// Select takes the session lock, resolves the candidate and runs commit.
func (r *RedisSessionStore) Select(ctx context.Context, id uuid.UUID, index int, commit domain.CommitFunc) (*domain.Session, domain.Candidate, error) {
	var (
		result    *domain.Session
		candidate domain.Candidate
		selectErr error
	)
	err := r.withLock(ctx, r.lockKey(id), r.opts.LockWait, func() error {
		session, err := r.load(ctx, id)
		if err != nil {
			return err
		}
		commitCtx, cancel := context.WithTimeout(ctx, r.commitTimeout())
		defer cancel()
		version := session.Version()
		result, candidate, selectErr = selectLocked(commitCtx, session, index, commit, r.opts.Clock)
		if result.Version() != version {
			return r.save(ctx, result, false)
		}
		return nil
	})
	if err != nil {
		return result, domain.Candidate{}, err
	}
	return result, candidate, selectErr
}

// Cancel closes an open session.
func (r *RedisSessionStore) Cancel(ctx context.Context, id uuid.UUID, reason domain.CloseReason) (*domain.Session, error) {
	var cancelled *domain.Session
	err := r.withLock(ctx, r.lockKey(id), r.opts.LockWait, func() error {
		session, err := r.load(ctx, id)
		if err != nil {
			return err
		}
		cancelled = session
		if err := session.Cancel(reason, r.opts.Clock.Now()); err != nil {
			return err
		}
		return r.save(ctx, session, false)
	})
	return cancelled, err
}

// Sweep expires open sessions whose expiry score has passed. Closed sessions
// are removed by key expiry after the retention period.
func (r *RedisSessionStore) Sweep(ctx context.Context, now time.Time) (domain.SweepResult, error) {
	var result domain.SweepResult

	ids, err := r.client.ZRangeByScore(ctx, r.openKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return result, fmt.Errorf("list expired sessions: %w", err)
	}

	for _, raw := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			r.client.ZRem(ctx, r.openKey(), raw)
			continue
		}

		err = r.withLock(ctx, r.lockKey(id), 0, func() error {
			session, err := r.load(ctx, id)
			if errors.Is(err, domain.ErrSessionNotFound) {
				result.Removed++
				return r.client.ZRem(ctx, r.openKey(), raw).Err()
			}
			if err != nil {
				return err
			}
			if !session.TTLElapsed(now) {
				return r.client.ZRem(ctx, r.openKey(), raw).Err()
			}
			if err := session.Expire(domain.ReasonTTL, now); err != nil {
				return err
			}
			if err := r.save(ctx, session, false); err != nil {
				return err
			}
			result.Expired = append(result.Expired, session)
			return nil
		})
		if errors.Is(err, ErrSessionBusy) {
			continue
		}
		if err != nil {
			r.opts.Logger.Warn("failed to sweep session", "session_id", id, "error", err)
		}
	}

	return result, nil
}

// save writes the snapshot and keeps the open index current. indexEvent also
// points the event key at this session.
func (r *RedisSessionStore) save(ctx context.Context, session *domain.Session, indexEvent bool) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return r.queueSave(ctx, pipe, session, indexEvent)
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// saveBoth indexes next and stores the superseded prev atomically.
func (r *RedisSessionStore) saveBoth(ctx context.Context, next, prev *domain.Session) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if err := r.queueSave(ctx, pipe, prev, false); err != nil {
			return err
		}
		return r.queueSave(ctx, pipe, next, true)
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) queueSave(ctx context.Context, pipe redis.Pipeliner, session *domain.Session, indexEvent bool) error {
	body, err := json.Marshal(session.Snapshot())
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	now := r.opts.Clock.Now()
	ttl := session.ExpiresAt().Sub(now) + r.opts.Retention
	if closed := session.ClosedAt(); closed != nil {
		ttl = closed.Add(r.opts.Retention).Sub(now)
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	pipe.Set(ctx, r.sessionKey(session.ID()), body, ttl)
	if session.Status() == domain.StatusOpen {
		pipe.ZAdd(ctx, r.openKey(), redis.Z{
			Score:  float64(session.ExpiresAt().UnixMilli()),
			Member: session.ID().String(),
		})
	} else {
		pipe.ZRem(ctx, r.openKey(), session.ID().String())
	}
	if indexEvent {
		pipe.Set(ctx, r.eventKey(session), session.ID().String(), ttl)
	}
	return nil
}

func (r *RedisSessionStore) load(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	body, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var snap domain.SessionSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return domain.RehydrateSession(snap)
}

// withLock runs fn while holding the lock at key. wait of zero tries once.
func (r *RedisSessionStore) withLock(ctx context.Context, key string, wait time.Duration, fn func() error) error {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	backoff := 10 * time.Millisecond

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.opts.LockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			break
		}
		if wait <= 0 || time.Now().After(deadline) {
			return ErrSessionBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}

	defer func() {
		// Release even when ctx is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			r.opts.Logger.Warn("failed to release session lock", "key", key, "error", err)
		}
	}()

	return fn()
}
