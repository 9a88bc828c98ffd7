package demodata

import (
	"context"
	"database/sql"
	"testing"

	"orders-graphql/internal/dbexec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSeedIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	exec := dbexec.NewStandardExecutor(db)
	ctx := context.Background()

	inserted, err := Seed(ctx, exec, Default())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = Seed(ctx, exec, Default())
	require.NoError(t, err)
	assert.False(t, inserted)

	var lines int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM order_items`).Scan(&lines))
	assert.Equal(t, len(Default().Lines), lines)
}

func TestInsertReportsFailingRow(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	exec := dbexec.NewStandardExecutor(db)
	require.NoError(t, CreateSchema(context.Background(), exec))

	ds := Dataset{Members: []Member{{1, "a"}, {1, "duplicate"}}}
	err = Insert(context.Background(), exec, ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member 1")
}
