package outbox

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresCodec_Rebind(t *testing.T) {
	got := postgresCodec{}.rebind(`UPDATE outbox SET last_error = ?, next_retry_at = ? WHERE id = ?`)
	assert.Equal(t, `UPDATE outbox SET last_error = $1, next_retry_at = $2 WHERE id = $3`, got)
}

func TestSQLiteCodec_TimesSortAsText(t *testing.T) {
	c := sqliteCodec{}
	early := c.time(time.Date(2026, 3, 2, 9, 0, 0, 5, time.FixedZone("CET", 3600))).(string)
	late := c.time(time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)).(string)
	assert.Less(t, early, late)
	assert.Equal(t, "2026-03-02T08:00:00.000000005Z", early)
}

func TestCodecFor(t *testing.T) {
	c, err := codecFor(database.DriverPostgres)
	require.NoError(t, err)
	assert.IsType(t, postgresCodec{}, c)

	_, err = codecFor(database.Driver("mysql"))
	assert.ErrorContains(t, err, "unsupported driver")
}
