// Package dbx holds the database seam the repositories are written
// against: DBTX, satisfied by both *sql.DB and *sql.Tx, and WithTx,
// which keeps a record mutation and its snapshot and change event in
// one transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the slice of database/sql the repositories use. Passing a
// *sql.Tx runs a repository inside an enclosing transaction; passing
// the *sql.DB runs it standalone.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn against it, and commits on
// success or rolls back on error. A panic inside fn rolls back and is
// rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    if err := m.Resources(tx).Insert(ctx, res); err != nil {
//	        return err
//	    }
//	    return m.Changes(tx).Insert(ctx, ev)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
