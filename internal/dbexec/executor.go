// Package dbexec provides database query execution abstractions.
// Loader code only sees a Querier; the concrete executor decides whether the
// query runs against the pool or inside a read-only transaction.
package dbexec

import (
	"context"
	"database/sql"
	"sync/atomic"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Querier runs read queries.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// QueryExecutor abstracts SQL execution including statements that modify data.
// Only schema bootstrap uses ExecContext.
type QueryExecutor interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// CountingQuerier records how many statements were issued through it.
type CountingQuerier struct {
	inner Querier
	count atomic.Int64
}

// NewCountingQuerier wraps q.
func NewCountingQuerier(q Querier) *CountingQuerier {
	return &CountingQuerier{inner: q}
}

// QueryContext counts the statement before delegating, so failed statements are included.
func (c *CountingQuerier) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	c.count.Add(1)
	return c.inner.QueryContext(ctx, query, args...)
}

// Count returns the number of statements issued so far.
func (c *CountingQuerier) Count() int {
	return int(c.count.Load())
}
