// Package dbtx defines the minimal querying surface shared by a pooled
// connection and a transaction, so store code never needs to know which one
// it was handed.
package dbtx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx. Every store in this
// repository accepts a DBTX instead of a concrete pool, so a caller that
// needs a mutation and its audit record in the same transaction can pass a
// pgx.Tx through the same constructors used for ordinary pooled calls.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// Beginner is satisfied by *pgxpool.Pool. It is the narrow interface
// WithTx needs, kept separate from DBTX so code holding a pgx.Tx (which
// cannot itself begin a nested transaction) can't be passed to WithTx.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a transaction started on pool, committing on a nil
// return and rolling back otherwise. This is how mutation + audit-insert
// pairs get their same-transaction guarantee: callers open one tx here and
// pass it to both the domain store and the audit store.
func WithTx(ctx context.Context, pool Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}
