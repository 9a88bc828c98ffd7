package resolver

import (
	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/loader"

	"github.com/graphql-go/graphql"
)

func (r *Resolver) orderStatusEnum() *graphql.Enum {
	if r.orderStatus != nil {
		return r.orderStatus
	}
	r.orderStatus = graphql.NewEnum(graphql.EnumConfig{
		Name:        "OrderStatus",
		Description: "Lifecycle state of an order",
		Values: graphql.EnumValueConfigMap{
			aggregate.StatusOrder:  &graphql.EnumValueConfig{Value: aggregate.StatusOrder, Description: "Placed and active"},
			aggregate.StatusCancel: &graphql.EnumValueConfig{Value: aggregate.StatusCancel, Description: "Cancelled"},
		},
	})
	return r.orderStatus
}

func (r *Resolver) loadStrategyEnum() *graphql.Enum {
	if r.loadStrategy != nil {
		return r.loadStrategy
	}
	r.loadStrategy = graphql.NewEnum(graphql.EnumConfig{
		Name:        "LoadStrategy",
		Description: "How order lines are fetched",
		Values: graphql.EnumValueConfigMap{
			"BATCH": &graphql.EnumValueConfig{
				Value:       string(loader.StrategyBatch),
				Description: "One order query, then one query for the lines of the whole page",
			},
			"JOIN": &graphql.EnumValueConfig{
				Value:       string(loader.StrategyJoin),
				Description: "A single joined query. Cannot be combined with offset or limit",
			},
			"NAIVE": &graphql.EnumValueConfig{
				Value:       string(loader.StrategyNaive),
				Description: "One query per order and association; only for comparison",
			},
		},
	})
	return r.loadStrategy
}

func (r *Resolver) addressType() *graphql.Object {
	if r.address != nil {
		return r.address
	}
	r.address = graphql.NewObject(graphql.ObjectConfig{
		Name: "Address",
		Fields: graphql.Fields{
			"city":    &graphql.Field{Type: graphql.String},
			"street":  &graphql.Field{Type: graphql.String},
			"zipcode": &graphql.Field{Type: graphql.String},
		},
	})
	return r.address
}

func (r *Resolver) orderItemType() *graphql.Object {
	if r.orderItem != nil {
		return r.orderItem
	}
	r.orderItem = graphql.NewObject(graphql.ObjectConfig{
		Name:        "OrderItem",
		Description: "One line of an order",
		Fields: graphql.Fields{
			"itemName": &graphql.Field{Type: graphql.String},
			"price":    &graphql.Field{Type: graphql.NewNonNull(graphql.Int), Description: "Unit price at order time"},
			"quantity": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
		},
	})
	return r.orderItem
}

// orderFields are shared by Order and SimpleOrder.
func (r *Resolver) orderFields() graphql.Fields {
	return graphql.Fields{
		"id":      &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
		"name":    &graphql.Field{Type: graphql.String, Description: "Name of the ordering member"},
		"date":    &graphql.Field{Type: graphql.DateTime},
		"status":  &graphql.Field{Type: graphql.NewNonNull(r.orderStatusEnum())},
		"address": &graphql.Field{Type: r.addressType()},
	}
}

func (r *Resolver) orderType() *graphql.Object {
	if r.order != nil {
		return r.order
	}
	fields := r.orderFields()
	fields[aggregate.AssocItems] = &graphql.Field{
		Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.orderItemType()))),
	}
	r.order = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Order",
		Description: "An order with its member, delivery address and lines",
		Fields:      fields,
	})
	return r.order
}

func (r *Resolver) simpleOrderType() *graphql.Object {
	if r.simpleOrder != nil {
		return r.simpleOrder
	}
	r.simpleOrder = graphql.NewObject(graphql.ObjectConfig{
		Name:        "SimpleOrder",
		Description: "An order without its lines",
		Fields:      r.orderFields(),
	})
	return r.simpleOrder
}
