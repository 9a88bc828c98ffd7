// Package demodata creates the order schema in SQLite and fills it with a
// small catalog so the server can run without an external database.
package demodata

import (
	"context"
	"fmt"

	"orders-graphql/internal/dbexec"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY,
		city TEXT,
		street TEXT,
		zipcode TEXT,
		status TEXT NOT NULL DEFAULT 'READY'
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL,
		stock_quantity INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY,
		member_id INTEGER NOT NULL REFERENCES members(id),
		delivery_id INTEGER NOT NULL REFERENCES deliveries(id),
		order_date DATETIME NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id),
		item_id INTEGER NOT NULL REFERENCES items(id),
		order_price INTEGER NOT NULL,
		count INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
}

// Member is a demo member row.
type Member struct {
	ID   int64
	Name string
}

// Delivery is a demo delivery row.
type Delivery struct {
	ID      int64
	City    string
	Street  string
	Zipcode string
}

// Item is a demo catalog item.
type Item struct {
	ID    int64
	Name  string
	Price int64
	Stock int64
}

// Order is a demo order row.
type Order struct {
	ID         int64
	MemberID   int64
	DeliveryID int64
	Date       string
	Status     string
}

// OrderLine is a demo order_items row.
type OrderLine struct {
	ID       int64
	OrderID  int64
	ItemID   int64
	Price    int64
	Quantity int64
}

// Dataset is a full set of rows to insert.
type Dataset struct {
	Members    []Member
	Deliveries []Delivery
	Items      []Item
	Orders     []Order
	Lines      []OrderLine
}

// Default is the catalog loaded by the demo server.
func Default() Dataset {
	return Dataset{
		Members:    []Member{{1, "userA"}, {2, "userB"}},
		Deliveries: []Delivery{{1, "Seoul", "1", "1111"}, {2, "Jinju", "2", "2222"}},
		Items: []Item{
			{1, "JPA1 BOOK", 10000, 100},
			{2, "JPA2 BOOK", 20000, 100},
			{3, "SPRING1 BOOK", 20000, 200},
			{4, "SPRING2 BOOK", 40000, 300},
		},
		Orders: []Order{
			{1, 1, 1, "2026-01-10 09:00:00", "ORDER"},
			{2, 2, 2, "2026-01-11 14:30:00", "ORDER"},
		},
		Lines: []OrderLine{
			{1, 1, 1, 10000, 1},
			{2, 1, 2, 20000, 2},
			{3, 2, 3, 20000, 3},
			{4, 2, 4, 40000, 4},
		},
	}
}

// CreateSchema creates the order tables if they do not exist.
func CreateSchema(ctx context.Context, exec dbexec.QueryExecutor) error {
	for _, stmt := range schemaStatements {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Insert writes every row of ds.
func Insert(ctx context.Context, exec dbexec.QueryExecutor, ds Dataset) error {
	for _, m := range ds.Members {
		if _, err := exec.ExecContext(ctx, `INSERT INTO members (id, name) VALUES (?, ?)`, m.ID, m.Name); err != nil {
			return fmt.Errorf("failed to insert member %d: %w", m.ID, err)
		}
	}
	for _, d := range ds.Deliveries {
		if _, err := exec.ExecContext(ctx, `INSERT INTO deliveries (id, city, street, zipcode) VALUES (?, ?, ?, ?)`,
			d.ID, d.City, d.Street, d.Zipcode); err != nil {
			return fmt.Errorf("failed to insert delivery %d: %w", d.ID, err)
		}
	}
	for _, it := range ds.Items {
		if _, err := exec.ExecContext(ctx, `INSERT INTO items (id, name, price, stock_quantity) VALUES (?, ?, ?, ?)`,
			it.ID, it.Name, it.Price, it.Stock); err != nil {
			return fmt.Errorf("failed to insert item %d: %w", it.ID, err)
		}
	}
	for _, o := range ds.Orders {
		if _, err := exec.ExecContext(ctx, `INSERT INTO orders (id, member_id, delivery_id, order_date, status) VALUES (?, ?, ?, ?, ?)`,
			o.ID, o.MemberID, o.DeliveryID, o.Date, o.Status); err != nil {
			return fmt.Errorf("failed to insert order %d: %w", o.ID, err)
		}
	}
	for _, l := range ds.Lines {
		if _, err := exec.ExecContext(ctx, `INSERT INTO order_items (id, order_id, item_id, order_price, count) VALUES (?, ?, ?, ?, ?)`,
			l.ID, l.OrderID, l.ItemID, l.Price, l.Quantity); err != nil {
			return fmt.Errorf("failed to insert order line %d: %w", l.ID, err)
		}
	}
	return nil
}

// Seed creates the schema and inserts ds when the orders table is empty.
// It reports whether rows were inserted.
func Seed(ctx context.Context, exec dbexec.QueryExecutor, ds Dataset) (bool, error) {
	if err := CreateSchema(ctx, exec); err != nil {
		return false, err
	}
	rows, err := exec.QueryContext(ctx, `SELECT COUNT(*) FROM orders`)
	if err != nil {
		return false, fmt.Errorf("failed to count orders: %w", err)
	}
	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return false, fmt.Errorf("failed to count orders: %w", err)
		}
	}
	if err := rows.Close(); err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	return true, Insert(ctx, exec, ds)
}
