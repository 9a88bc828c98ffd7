// Package projection maps loaded order aggregates to response values.
package projection

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"orders-graphql/internal/aggregate"
)

// Address is the delivery address of an order.
type Address struct {
	City    string
	Street  string
	Zipcode string
}

// OrderItemView is one order line.
type OrderItemView struct {
	ItemName string
	Price    int64
	Quantity int64
}

// OrderView is the projected order. Items is nil when order lines were not
// loaded and empty when the order has none.
type OrderView struct {
	ID      int64
	Name    string
	Date    time.Time
	Status  string
	Address Address
	Items   []OrderItemView
}

// Project maps roots and their order lines to views in root order. Children
// keep the order of items. Pass a nil group to skip order lines.
func Project(roots []aggregate.RootRecord, items aggregate.AssociationGroup) []OrderView {
	views := make([]OrderView, 0, len(roots))
	for _, root := range roots {
		view := OrderView{
			ID:     root.ID,
			Date:   asTime(root.Fields["order_date"]),
			Status: asString(root.Fields["status"]),
		}
		if member, ok := root.ToOne[aggregate.AssocMember]; ok {
			view.Name = asString(member["name"])
		}
		if delivery, ok := root.ToOne[aggregate.AssocDelivery]; ok {
			view.Address = Address{
				City:    asString(delivery["city"]),
				Street:  asString(delivery["street"]),
				Zipcode: asString(delivery["zipcode"]),
			}
		}
		if items != nil {
			view.Items = projectItems(items[root.ID])
		}
		views = append(views, view)
	}
	return views
}

func projectItems(children []aggregate.ChildRecord) []OrderItemView {
	out := make([]OrderItemView, len(children))
	for i, child := range children {
		out[i] = OrderItemView{
			Price:    asInt64(child.Fields["order_price"]),
			Quantity: asInt64(child.Fields["count"]),
		}
		if child.Leaf != nil {
			out[i].ItemName = asString(child.Leaf["name"])
		}
	}
	return out
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int32:
		return int64(val)
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n
	default:
		return 0
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// asTime accepts driver time values and the text forms SQLite stores.
// Unparseable values yield the zero time.
func asTime(v interface{}) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
