package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config selects and configures a backend.
type Config struct {
	// Driver overrides detection from URL.
	Driver Driver
	// URL is a postgres:// URL, or a sqlite:// or file: path.
	URL string
	// SQLitePath wins over a SQLite URL. Defaults to DefaultSQLitePath.
	SQLitePath string
	// MaxConns caps the Postgres pool; zero keeps the pgx default.
	MaxConns int
}

// Opener opens a connection for one driver.
type Opener func(ctx context.Context, cfg Config) (Connection, error)

var (
	openersMu sync.RWMutex
	openers   = map[Driver]Opener{}
)

// Register makes a driver available to NewConnection. The driver packages
// call it from init, so importing database/sqlite or database/postgres for
// side effects is enough.
func Register(driver Driver, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[driver] = open
}

// NewConnection opens a connection with the driver named by cfg or its URL.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver := cfg.Driver
	if driver == "" {
		var err error
		if driver, err = ParseDriver(cfg.URL); err != nil {
			return nil, err
		}
	}
	if driver == DriverSQLite && cfg.SQLitePath == "" {
		cfg.SQLitePath = sqlitePath(cfg.URL)
	}

	openersMu.RLock()
	open, ok := openers[driver]
	openersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database driver %s not registered", driver)
	}
	return open(ctx, cfg)
}

// DefaultSQLitePath returns ~/.reslot/reslot.db, or ./.reslot/reslot.db when
// the home directory is unknown.
func DefaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".reslot", "reslot.db")
}

func sqlitePath(url string) string {
	for _, prefix := range []string{"sqlite://", "file:"} {
		if rest, ok := strings.CutPrefix(url, prefix); ok {
			return rest
		}
	}
	return url
}
