package sqlqueue

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type TransactionFunc func(tx pgx.Tx) error

func (s *Store) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
