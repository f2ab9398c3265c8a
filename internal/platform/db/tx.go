package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// WithTx executes fn within a READ COMMITTED transaction. Callers lock the
// rows they mutate, so concurrent writers queue instead of failing
// serialization. Begin and commit failures are reported as infrastructure
// errors; errors returned by fn pass through untouched.
func WithTx(ctx context.Context, pool *pgxpool.Pool, op string, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return shared.Infrastructure(op+": begin tx", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return shared.Infrastructure(op+": commit", tx.Commit(ctx))
}
