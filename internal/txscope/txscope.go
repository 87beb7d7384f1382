// Package txscope collects the "begin, defer rollback, commit on
// success" pattern that would otherwise be hand-rolled at every
// transactional call site into one helper.
package txscope

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx runs fn inside a transaction: commits if fn returns nil,
// rolls back otherwise, and rolls back if fn panics (the panic is
// re-raised after rollback so the caller's recover, if any, still
// sees it).
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) (err error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(tx)
	return err
}
