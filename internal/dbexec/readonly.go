package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReadOnlyRunner runs a unit of work inside one read-only transaction.
// Every statement of the unit sees the same snapshot, and nothing issued
// through the transaction can modify data.
type ReadOnlyRunner struct {
	db *sql.DB
}

// NewReadOnlyRunner creates a runner bound to db.
func NewReadOnlyRunner(db *sql.DB) *ReadOnlyRunner {
	return &ReadOnlyRunner{db: db}
}

// Run begins a read-only transaction, passes a Querier bound to it to fn, and
// commits when fn succeeds. Any error from fn rolls the transaction back and
// is returned unchanged.
func (r *ReadOnlyRunner) Run(ctx context.Context, fn func(Querier) error) (err error) {
	if r.db == nil {
		return sql.ErrConnDone
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}

	q := &txQuerier{tx: tx}
	defer func() {
		q.done = true
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
		}
	}()

	if err = fn(q); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit read-only transaction: %w", err)
	}
	return nil
}

type txQuerier struct {
	tx   *sql.Tx
	done bool
}

func (q *txQuerier) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if q.done {
		return nil, sql.ErrTxDone
	}
	return q.tx.QueryContext(ctx, query, args...)
}
