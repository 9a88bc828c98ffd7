package aggregate

// Order statuses.
const (
	StatusOrder  = "ORDER"
	StatusCancel = "CANCEL"
)

// Association names exposed by the order aggregate.
const (
	AssocMember   = "member"
	AssocDelivery = "delivery"
	AssocItems    = "items"
	AssocItem     = "item"
)

// MemberAssociation joins the ordering member.
var MemberAssociation = Association{
	Name:         AssocMember,
	Kind:         ToOne,
	Table:        "members",
	Alias:        "m",
	LocalColumn:  "member_id",
	RemoteColumn: "id",
	Columns:      []string{"name"},
}

// DeliveryAssociation joins the delivery and its address.
var DeliveryAssociation = Association{
	Name:         AssocDelivery,
	Kind:         ToOne,
	Table:        "deliveries",
	Alias:        "d",
	LocalColumn:  "delivery_id",
	RemoteColumn: "id",
	Columns:      []string{"city", "street", "zipcode"},
}

// ItemAssociation resolves the catalog item of an order line.
var ItemAssociation = Association{
	Name:         AssocItem,
	Kind:         ToOne,
	Table:        "items",
	Alias:        "i",
	LocalColumn:  "item_id",
	RemoteColumn: "id",
	Columns:      []string{"name"},
}

// OrderItemsAssociation loads the order lines of an order.
var OrderItemsAssociation = Association{
	Name:         AssocItems,
	Kind:         ToMany,
	Table:        "order_items",
	Alias:        "oi",
	LocalColumn:  "id",
	RemoteColumn: "order_id",
	IDColumn:     "id",
	Columns:      []string{"order_price", "count"},
	Leaf:         &ItemAssociation,
}

// Orders is the order aggregate root.
func Orders() Root {
	return Root{
		Table:        "orders",
		Alias:        "o",
		IDColumn:     "id",
		Columns:      []string{"order_date", "status"},
		StatusColumn: "status",
		Statuses:     []string{StatusOrder, StatusCancel},
		NameFilter:   ColumnRef{Alias: MemberAssociation.Alias, Column: "name"},
		ToOne:        []Association{MemberAssociation, DeliveryAssociation},
		ToMany:       []Association{OrderItemsAssociation},
	}
}
