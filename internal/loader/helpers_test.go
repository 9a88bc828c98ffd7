package loader

import (
	"context"
	"database/sql"
	"testing"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/demodata"
	"orders-graphql/internal/planner"
	"orders-graphql/internal/sqlutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var rootColumns = []string{"id", "order_date", "status", "name", "city", "street", "zipcode"}

var childColumns = []string{"order_id", "id", "order_price", "count", "name"}

var joinColumns = []string{"id", "order_date", "status", "name", "city", "street", "zipcode", "id", "order_price", "count", "name"}

func newTestPlanner() *planner.Planner {
	return planner.New(sqlutil.DialectMySQL, planner.PlanLimits{MaxRows: 1000, DefaultLimit: 100})
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func addRoot(rows *sqlmock.Rows, id int64, name string) *sqlmock.Rows {
	return rows.AddRow(id, "2026-01-01 10:00:00", "ORDER", name, "Seoul", "street", "12345")
}

// querierRunner runs units directly against a querier without a transaction.
type querierRunner struct {
	q dbexec.Querier
}

func (r querierRunner) Run(_ context.Context, fn func(dbexec.Querier) error) error {
	return fn(r.q)
}

// cancelAfterFirst cancels the run context once the first statement returns.
type cancelAfterFirst struct {
	inner  dbexec.Querier
	cancel context.CancelFunc
	calls  int
}

func (c *cancelAfterFirst) QueryContext(ctx context.Context, query string, args ...any) (dbexec.Rows, error) {
	c.calls++
	rows, err := c.inner.QueryContext(ctx, query, args...)
	if c.calls == 1 {
		c.cancel()
	}
	return rows, err
}

// newSQLiteDB opens an in-memory database with the order schema and ds.
func newSQLiteDB(t *testing.T, ds demodata.Dataset) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	exec := dbexec.NewStandardExecutor(db)
	require.NoError(t, demodata.CreateSchema(context.Background(), exec))
	require.NoError(t, demodata.Insert(context.Background(), exec, ds))
	return db
}

// twoOrdersThreeLines has two orders with three lines each.
func twoOrdersThreeLines() demodata.Dataset {
	return demodata.Dataset{
		Members:    []demodata.Member{{ID: 1, Name: "kim"}, {ID: 2, Name: "lee"}},
		Deliveries: []demodata.Delivery{{ID: 1, City: "Seoul", Street: "a", Zipcode: "1"}, {ID: 2, City: "Busan", Street: "b", Zipcode: "2"}},
		Items: []demodata.Item{
			{ID: 1, Name: "book", Price: 100}, {ID: 2, Name: "pen", Price: 10}, {ID: 3, Name: "ink", Price: 5},
		},
		Orders: []demodata.Order{
			{ID: 1, MemberID: 1, DeliveryID: 1, Date: "2026-02-01 10:00:00", Status: aggregate.StatusOrder},
			{ID: 2, MemberID: 2, DeliveryID: 2, Date: "2026-02-02 11:00:00", Status: aggregate.StatusOrder},
		},
		Lines: []demodata.OrderLine{
			{ID: 1, OrderID: 1, ItemID: 1, Price: 100, Quantity: 1},
			{ID: 2, OrderID: 1, ItemID: 2, Price: 10, Quantity: 2},
			{ID: 3, OrderID: 1, ItemID: 3, Price: 5, Quantity: 3},
			{ID: 4, OrderID: 2, ItemID: 1, Price: 100, Quantity: 4},
			{ID: 5, OrderID: 2, ItemID: 2, Price: 10, Quantity: 5},
			{ID: 6, OrderID: 2, ItemID: 3, Price: 5, Quantity: 6},
		},
	}
}

func childIDs(children []aggregate.ChildRecord) []int64 {
	ids := make([]int64, len(children))
	for i, c := range children {
		ids[i] = c.ID
	}
	return ids
}
