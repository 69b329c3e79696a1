package db

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type contextKey string

const txKey contextKey = "db_tx"

// TxBeginner starts transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx runs fn inside a single transaction and makes it available to
// repositories via TxFromContext. Each request gets exactly one transaction;
// a non-nil error from fn rolls everything back.
func WithTx(ctx context.Context, pool TxBeginner, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// TxFromContext retrieves the request transaction, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}
