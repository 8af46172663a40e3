package database

import (
	"context"
	"errors"
)

// ErrNoTransaction is returned by Commit and Rollback on a context Begin did
// not produce.
var ErrNoTransaction = errors.New("no transaction in context")

type txKey struct{}

// txScope is the transaction bound to a context. Only the scope that opened
// the transaction may end it.
type txScope struct {
	tx    Transaction
	owner bool
}

func scopeFrom(ctx context.Context) (txScope, bool) {
	scope, ok := ctx.Value(txKey{}).(txScope)
	return scope, ok && scope.tx != nil
}

// ExecutorFromContext returns the transaction bound to ctx, or conn when
// there is none. Repositories call it for every statement so they join a
// surrounding unit of work.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if scope, ok := scopeFrom(ctx); ok {
		return scope.tx
	}
	return conn
}

// InTx reports whether ctx carries a transaction.
func InTx(ctx context.Context) bool {
	_, ok := scopeFrom(ctx)
	return ok
}

// UnitOfWork binds a transaction to a context. A nested Begin joins the outer
// transaction and its Commit and Rollback are no-ops.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a unit of work on conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin returns a context carrying a transaction.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if scope, ok := scopeFrom(ctx); ok {
		return context.WithValue(ctx, txKey{}, txScope{tx: scope.tx}), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return context.WithValue(ctx, txKey{}, txScope{tx: tx, owner: true}), nil
}

// Commit commits the transaction opened by the matching Begin.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	scope, ok := scopeFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !scope.owner {
		return nil
	}
	return scope.tx.Commit(ctx)
}

// Rollback rolls back the transaction opened by the matching Begin.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	scope, ok := scopeFrom(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !scope.owner {
		return nil
	}
	return scope.tx.Rollback(ctx)
}

// RunInTx runs fn inside a transaction on conn, joining the one bound to ctx
// if any. fn's error rolls the transaction back and is returned unchanged.
func RunInTx(ctx context.Context, conn Connection, fn func(ctx context.Context) error) error {
	uow := NewUnitOfWork(conn)
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(txCtx); err != nil {
		if rbErr := uow.Rollback(txCtx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return uow.Commit(txCtx)
}
