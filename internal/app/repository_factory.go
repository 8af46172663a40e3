package app

import (
	"fmt"

	identityOAuth "github.com/felixgeelhaar/reslot/internal/identity/application/oauth"
	identityPersistence "github.com/felixgeelhaar/reslot/internal/identity/infrastructure/persistence"
	rescheduleDomain "github.com/felixgeelhaar/reslot/internal/reschedule/domain"
	reschedulePersistence "github.com/felixgeelhaar/reslot/internal/reschedule/infrastructure/persistence"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reslot/internal/shared/infrastructure/outbox"
)

// RepositoryFactory builds the SQL-backed repositories for one connection.
type RepositoryFactory struct {
	conn database.Connection
}

func NewRepositoryFactory(conn database.Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

func (f *RepositoryFactory) Driver() database.Driver {
	return f.conn.Driver()
}

// perDriver picks the constructor matching the connection's backend.
func perDriver[T any](conn database.Connection, postgres, sqlite func(database.Connection) T) (T, error) {
	switch driver := conn.Driver(); driver {
	case database.DriverPostgres:
		return postgres(conn), nil
	case database.DriverSQLite:
		return sqlite(conn), nil
	default:
		var zero T
		return zero, fmt.Errorf("no repositories for driver %s", driver)
	}
}

func (f *RepositoryFactory) AttemptRepository() (rescheduleDomain.AttemptRepository, error) {
	return perDriver(f.conn,
		func(c database.Connection) rescheduleDomain.AttemptRepository {
			return reschedulePersistence.NewPostgresAttemptRepository(c)
		},
		func(c database.Connection) rescheduleDomain.AttemptRepository {
			return reschedulePersistence.NewSQLiteAttemptRepository(c)
		},
	)
}

func (f *RepositoryFactory) OAuthTokenRepository() (identityOAuth.TokenRepository, error) {
	return perDriver(f.conn,
		func(c database.Connection) identityOAuth.TokenRepository {
			return identityPersistence.NewPostgresOAuthTokenRepository(c)
		},
		func(c database.Connection) identityOAuth.TokenRepository {
			return identityPersistence.NewSQLiteOAuthTokenRepository(c)
		},
	)
}

// OutboxRepository serves both backends from one implementation.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	repo, err := outbox.NewSQLRepository(f.conn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// UnitOfWork spans every repository built from the same connection.
func (f *RepositoryFactory) UnitOfWork() *database.UnitOfWork {
	return database.NewUnitOfWork(f.conn)
}
