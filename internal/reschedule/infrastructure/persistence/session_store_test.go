package persistence

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	availability "github.com/felixgeelhaar/reslot/internal/availability/domain"
	"github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock, retention time.Duration) domain.SessionStore

func openSession(clock *fakeClock, userID uuid.UUID, eventID string, slots int) *domain.Session {
	now := clock.Now()
	candidates := make([]availability.Interval, slots)
	for i := range candidates {
		start := now.Add(time.Duration(i+1) * time.Hour)
		candidates[i] = availability.MustInterval(start, start.Add(30*time.Minute))
	}
	return domain.NewSession(domain.NewSessionParams{
		UserID:    userID,
		EventID:   eventID,
		Attendees: []string{"a@example.com"},
		Window:    availability.WindowFromNow(now, 14),
		Slots:     candidates,
		TTL:       5 * time.Minute,
		Now:       now,
	})
}

func noopCommit(context.Context, *domain.Session, domain.Candidate) error { return nil }

func runSessionStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("get unknown", func(t *testing.T) {
		store := factory(t, newFakeClock(), time.Hour)
		_, err := store.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		_, _, err = store.Select(ctx, uuid.New(), 0, noopCommit)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("create and get", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		session := openSession(clock, uuid.New(), "evt-get", 3)

		superseded, err := store.Create(ctx, session)
		require.NoError(t, err)
		assert.Nil(t, superseded)

		got, err := store.Get(ctx, session.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, got.Status())
		assert.Len(t, got.Candidates(), 3)
		assert.Empty(t, got.DomainEvents())
	})

	t.Run("select commits after write", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		session := openSession(clock, uuid.New(), "evt-select", 3)
		_, err := store.Create(ctx, session)
		require.NoError(t, err)

		var written domain.Candidate
		got, candidate, err := store.Select(ctx, session.ID(), 2, func(_ context.Context, _ *domain.Session, c domain.Candidate) error {
			written = c
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, candidate.Index)
		assert.Equal(t, written, candidate)
		assert.Equal(t, domain.StatusCommitted, got.Status())

		_, _, err = store.Select(ctx, session.ID(), 0, noopCommit)
		assert.ErrorIs(t, err, domain.ErrSessionClosed)
	})

	t.Run("invalid selection keeps session open", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		session := openSession(clock, uuid.New(), "evt-invalid", 2)
		_, err := store.Create(ctx, session)
		require.NoError(t, err)

		called := false
		_, _, err = store.Select(ctx, session.ID(), 5, func(context.Context, *domain.Session, domain.Candidate) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, domain.ErrInvalidSelection)
		assert.False(t, called)
		got, err := store.Get(ctx, session.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, got.Status())
	})

	t.Run("failed write leaves session open", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		session := openSession(clock, uuid.New(), "evt-fail", 2)
		_, err := store.Create(ctx, session)
		require.NoError(t, err)

		writeErr := errors.New("calendar unavailable")
		_, _, err = store.Select(ctx, session.ID(), 0, func(context.Context, *domain.Session, domain.Candidate) error {
			return writeErr
		})

		assert.ErrorIs(t, err, writeErr)
		got, err := store.Get(ctx, session.ID())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOpen, got.Status())
	})

	t.Run("event gone expires session", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		session := openSession(clock, uuid.New(), "evt-gone", 2)
		_, err := store.Create(ctx, session)
		require.NoError(t, err)

		got, _, err := store.Select(ctx, session.ID(), 0, func(context.Context, *domain.Session, domain.Candidate) error {
			return domain.ErrEventGone
		})

		assert.ErrorIs(t, err, domain.ErrEventGone)
		assert.Equal(t, domain.StatusExpired, got.Status())
		assert.Equal(t, domain.ReasonEventGone, got.CloseReason())
	})

	t.Run("newer request supersedes", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		userID := uuid.New()
		first := openSession(clock, userID, "evt-super", 2)
		_, err := store.Create(ctx, first)
		require.NoError(t, err)

		second := openSession(clock, userID, "evt-super", 2)
		superseded, err := store.Create(ctx, second)
		require.NoError(t, err)
		require.NotNil(t, superseded)
		assert.Equal(t, first.ID(), superseded.ID())
		assert.Equal(t, domain.StatusCancelled, superseded.Status())
		assert.Equal(t, domain.ReasonSuperseded, superseded.CloseReason())

		_, _, err = store.Select(ctx, first.ID(), 0, noopCommit)
		assert.ErrorIs(t, err, domain.ErrSessionClosed)

		_, _, err = store.Select(ctx, second.ID(), 0, noopCommit)
		assert.NoError(t, err)
	})

	t.Run("sweep expires after ttl then removes", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Minute)
		session := openSession(clock, uuid.New(), "evt-sweep", 1)
		_, err := store.Create(ctx, session)
		require.NoError(t, err)

		result, err := store.Sweep(ctx, clock.Now())
		require.NoError(t, err)
		assert.Empty(t, result.Expired)

		clock.Advance(5 * time.Minute)
		result, err = store.Sweep(ctx, clock.Now())
		require.NoError(t, err)
		require.Len(t, result.Expired, 1)
		assert.Equal(t, domain.StatusExpired, result.Expired[0].Status())
		assert.Equal(t, domain.ReasonTTL, result.Expired[0].CloseReason())

		_, _, err = store.Select(ctx, session.ID(), 0, noopCommit)
		assert.ErrorIs(t, err, domain.ErrSessionClosed)
	})

	t.Run("concurrent selects commit once", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		session := openSession(clock, uuid.New(), "evt-race", 3)
		_, err := store.Create(ctx, session)
		require.NoError(t, err)

		var writes, wins, closed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				_, _, err := store.Select(ctx, session.ID(), idx%3, func(context.Context, *domain.Session, domain.Candidate) error {
					writes.Add(1)
					time.Sleep(5 * time.Millisecond)
					return nil
				})
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, domain.ErrSessionClosed):
					closed.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(1), writes.Load())
		assert.Equal(t, int32(15), closed.Load())
	})

	t.Run("concurrent creates leave one open session per event", func(t *testing.T) {
		clock := newFakeClock()
		store := factory(t, clock, time.Hour)
		userID := uuid.New()
		seed := openSession(clock, userID, "evt-create-race", 2)
		_, err := store.Create(ctx, seed)
		require.NoError(t, err)

		sessions := []*domain.Session{seed}
		for i := 0; i < 8; i++ {
			sessions = append(sessions, openSession(clock, userID, "evt-create-race", 2))
		}

		var superseded atomic.Int32
		var wg sync.WaitGroup
		for _, s := range sessions[1:] {
			wg.Add(1)
			go func(s *domain.Session) {
				defer wg.Done()
				prev, err := store.Create(ctx, s)
				assert.NoError(t, err)
				if prev != nil {
					superseded.Add(1)
				}
			}(s)
		}
		wg.Wait()

		open := 0
		for _, s := range sessions {
			got, err := store.Get(ctx, s.ID())
			require.NoError(t, err)
			if got.Status() == domain.StatusOpen {
				open++
			} else {
				assert.Equal(t, domain.ReasonSuperseded, got.CloseReason())
			}
		}
		assert.Equal(t, 1, open)
		assert.Equal(t, int32(8), superseded.Load())
	})
}

func TestMemorySessionStore(t *testing.T) {
	runSessionStoreContract(t, func(t *testing.T, clock *fakeClock, retention time.Duration) domain.SessionStore {
		return NewMemorySessionStore(StoreOptions{Clock: clock, Retention: retention})
	})
}

func TestMemorySessionStore_SweepRemovesTombstones(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemorySessionStore(StoreOptions{Clock: clock, Retention: time.Minute})
	session := openSession(clock, uuid.New(), "evt-tomb", 1)
	_, err := store.Create(ctx, session)
	require.NoError(t, err)

	_, err = store.Cancel(ctx, session.ID(), domain.ReasonUser)
	require.NoError(t, err)

	result, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Removed)

	clock.Advance(time.Minute)
	result, err = store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Zero(t, store.Len())

	_, err = store.Get(ctx, session.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemorySessionStore_SweepSkipsInFlightCommit(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemorySessionStore(StoreOptions{Clock: clock, Retention: time.Hour})
	session := openSession(clock, uuid.New(), "evt-inflight", 1)
	_, err := store.Create(ctx, session)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, _, err := store.Select(ctx, session.ID(), 0, func(context.Context, *domain.Session, domain.Candidate) error {
			close(started)
			<-release
			return nil
		})
		done <- err
	}()

	<-started
	clock.Advance(10 * time.Minute)
	result, err := store.Sweep(ctx, clock.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Expired)

	close(release)
	require.NoError(t, <-done)

	got, err := store.Get(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCommitted, got.Status())
}

func TestMemorySessionStore_NoSlotsSessionIsClosed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemorySessionStore(StoreOptions{Clock: clock})
	session := openSession(clock, uuid.New(), "evt-empty", 0)
	_, err := store.Create(ctx, session)
	require.NoError(t, err)

	_, _, err = store.Select(ctx, session.ID(), 0, noopCommit)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func testRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set, skipping integration test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Failed to ping test redis: %v", err)
	}
	return client
}

func TestRedisSessionStore(t *testing.T) {
	client := testRedisClient(t)
	runSessionStoreContract(t, func(t *testing.T, clock *fakeClock, retention time.Duration) domain.SessionStore {
		return NewRedisSessionStore(client, RedisStoreOptions{
			StoreOptions: StoreOptions{Clock: clock, Retention: retention},
			Prefix:       "reslot-test:" + uuid.NewString(),
			LockWait:     5 * time.Second,
		})
	})
}

func TestRedisSessionStore_CommitTimeout(t *testing.T) {
	tests := map[time.Duration]time.Duration{
		30 * time.Second:       28 * time.Second,
		time.Second:            800 * time.Millisecond,
		250 * time.Millisecond: 200 * time.Millisecond,
	}
	for ttl, want := range tests {
		store := NewRedisSessionStore(nil, RedisStoreOptions{LockTTL: ttl})
		assert.Equal(t, want, store.commitTimeout(), ttl.String())
	}
}

func TestRedisSessionStore_BusySupersedeStoresNothing(t *testing.T) {
	ctx := context.Background()
	client := testRedisClient(t)
	clock := newFakeClock()
	store := NewRedisSessionStore(client, RedisStoreOptions{
		StoreOptions: StoreOptions{Clock: clock, Retention: time.Hour},
		Prefix:       "reslot-test:" + uuid.NewString(),
		LockWait:     50 * time.Millisecond,
	})

	userID := uuid.New()
	first := openSession(clock, userID, "evt-busy", 2)
	_, err := store.Create(ctx, first)
	require.NoError(t, err)

	// An in-flight select holds the first session.
	require.NoError(t, client.Set(ctx, store.lockKey(first.ID()), "held", time.Minute).Err())

	second := openSession(clock, userID, "evt-busy", 2)
	_, err = store.Create(ctx, second)
	assert.ErrorIs(t, err, ErrSessionBusy)

	_, err = store.Get(ctx, second.ID())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	got, err := store.Get(ctx, first.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status())
}

func TestRedisSessionStore_CommitEndsBeforeLockLapses(t *testing.T) {
	ctx := context.Background()
	client := testRedisClient(t)
	clock := newFakeClock()
	store := NewRedisSessionStore(client, RedisStoreOptions{
		StoreOptions: StoreOptions{Clock: clock, Retention: time.Hour},
		Prefix:       "reslot-test:" + uuid.NewString(),
		LockTTL:      300 * time.Millisecond,
		LockWait:     time.Second,
	})
	session := openSession(clock, uuid.New(), "evt-slow", 2)
	_, err := store.Create(ctx, session)
	require.NoError(t, err)

	var writes atomic.Int32
	slowWrite := func(ctx context.Context, _ *domain.Session, _ domain.Candidate) error {
		writes.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}

	started := time.Now()
	_, _, err = store.Select(ctx, session.ID(), 0, slowWrite)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 300*time.Millisecond)

	got, err := store.Get(ctx, session.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status())

	_, _, err = store.Select(ctx, session.ID(), 1, noopCommit)
	require.NoError(t, err)
	assert.Equal(t, int32(1), writes.Load())
}
