package database

import (
	"errors"
	"fmt"
	"strings"
)

// Driver names a database backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// ErrUnsupportedURL is returned for a URL that names neither backend.
var ErrUnsupportedURL = errors.New("unsupported database url")

// ParseDriver picks the backend for a connection URL. An empty URL means the
// local SQLite file.
func ParseDriver(url string) (Driver, error) {
	switch {
	case url == "":
		return DriverSQLite, nil
	case hasPrefix(url, "postgres://", "postgresql://"):
		return DriverPostgres, nil
	case hasPrefix(url, "sqlite://", "file:"), hasSuffix(url, ".db", ".sqlite", ".sqlite3"):
		return DriverSQLite, nil
	}
	// Only the scheme; the rest may hold credentials.
	scheme, _, _ := strings.Cut(url, "://")
	return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
}

func hasPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func hasSuffix(s string, suffixes ...string) bool {
	for _, p := range suffixes {
		if strings.HasSuffix(s, p) {
			return true
		}
	}
	return false
}
