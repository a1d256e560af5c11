// Package dbtx carries an open *sql.Tx through a context.Context so that
// business code and the outbox enqueuer can share one transaction without
// either side importing the other's package.
package dbtx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// Executor is satisfied by both *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ContextWithTx returns a copy of ctx carrying tx. A nil tx is stored as-is;
// TxFromContext on such a context returns nil, same as an absent tx.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the *sql.Tx previously stored by ContextWithTx, or
// nil if none is present.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// GetExecutor returns the transaction in ctx if one is present, otherwise
// db itself. A repository method backed by a plain *sql.DB can call this
// once at the top so it works identically whether or not a caller has
// opened a transaction.
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}

	return db
}

// RunInTransaction begins a transaction on db, stores it in ctx, and runs fn.
// fn's error rolls the transaction back; a panic inside fn is rolled back
// and re-raised. A nil error from fn commits.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	ctx = ContextWithTx(ctx, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return err
	}

	return nil
}
