package outbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database/postgres"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) database.Connection {
	t.Helper()
	ctx := context.Background()
	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "outbox.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))
	return conn
}

func TestSQLRepository_SQLiteLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := outbox.NewSQLRepository(openSQLite(t))
	require.NoError(t, err)

	first := newMessage(t, "reschedule.session.offered")
	second := newMessage(t, "reschedule.session.committed")
	second.CreatedAt = first.CreatedAt.Add(time.Millisecond)
	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{first, second}))
	assert.NotZero(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	pending, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.EventID, pending[0].EventID)
	assert.Equal(t, first.AggregateID, pending[0].AggregateID)
	assert.JSONEq(t, string(first.Payload), string(pending[0].Payload))

	require.NoError(t, repo.MarkPublished(ctx, first.ID))
	require.NoError(t, repo.MarkFailed(ctx, second.ID, "boom", time.Now().Add(time.Hour)))

	pending, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := repo.GetFailed(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, failed, "retry is scheduled in the future")

	require.NoError(t, repo.MarkDead(ctx, second.ID, "gave up"))
	removed, err := repo.DeleteOld(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSQLRepository_PostgresLifecycle(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	conn, err := postgres.NewConnection(ctx, database.Config{Driver: database.DriverPostgres, URL: dbURL})
	if err != nil {
		t.Skipf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrations.Run(ctx, conn))

	repo, err := outbox.NewSQLRepository(conn)
	require.NoError(t, err)
	msg := newMessage(t, "reschedule.session.offered")
	require.NoError(t, repo.SaveBatch(ctx, []*outbox.Message{msg}))
	t.Cleanup(func() { _ = repo.MarkPublished(ctx, msg.ID) })

	pending, err := repo.GetUnpublished(ctx, 100)
	require.NoError(t, err)
	var found bool
	for _, p := range pending {
		if p.EventID == msg.EventID {
			found = true
		}
	}
	assert.True(t, found)
}
