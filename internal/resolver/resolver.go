// Package resolver exposes order aggregates over GraphQL. Each list field
// runs one loader pipeline request, so a query costs a fixed number of
// statements regardless of how many orders it returns.
package resolver

import (
	"errors"
	"fmt"
	"strconv"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/loader"
	"orders-graphql/internal/projection"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// Config tunes how GraphQL arguments map onto loader requests.
type Config struct {
	// JoinRowPagination lets JOIN requests with offset/limit page over joined
	// rows instead of failing.
	JoinRowPagination bool
}

// Resolver builds the order schema on top of a loader pipeline.
type Resolver struct {
	pipeline *loader.Pipeline
	cfg      Config

	orderStatus  *graphql.Enum
	loadStrategy *graphql.Enum
	address      *graphql.Object
	orderItem    *graphql.Object
	order        *graphql.Object
	simpleOrder  *graphql.Object
}

// NewResolver creates a resolver that loads through pipeline.
func NewResolver(pipeline *loader.Pipeline, cfg Config) *Resolver {
	return &Resolver{pipeline: pipeline, cfg: cfg}
}

// BuildGraphQLSchema constructs the executable schema.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	filterArgs := graphql.FieldConfigArgument{
		"status":       &graphql.ArgumentConfig{Type: r.orderStatusEnum()},
		"nameContains": &graphql.ArgumentConfig{Type: graphql.String, Description: "Substring of the member name"},
		"offset":       &graphql.ArgumentConfig{Type: graphql.Int},
		"limit":        &graphql.ArgumentConfig{Type: graphql.Int, Description: "Page size in orders, capped by the server"},
	}
	ordersArgs := graphql.FieldConfigArgument{
		"strategy": &graphql.ArgumentConfig{Type: r.loadStrategyEnum()},
	}
	for name, arg := range filterArgs {
		ordersArgs[name] = arg
	}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"orders": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.orderType()))),
				Description: "Orders matching the filters, with their lines when selected",
				Args:        ordersArgs,
				Resolve:     r.resolveOrders,
			},
			"simpleOrders": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.simpleOrderType()))),
				Description: "Orders with member and delivery fetched in one paginated query",
				Args:        filterArgs,
				Resolve:     r.resolveSimpleOrders,
			},
		},
	})
	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

func (r *Resolver) resolveOrders(p graphql.ResolveParams) (interface{}, error) {
	criteria, err := criteriaFromArgs(p.Args)
	if err != nil {
		return nil, wrapLoadError(err)
	}
	req := loader.Request{
		Criteria:      criteria,
		RowPagination: r.cfg.JoinRowPagination,
	}
	if s, ok := p.Args["strategy"].(string); ok {
		req.Strategy = loader.Strategy(s)
	}
	withItems := selectsField(firstFieldAST(p.Info.FieldASTs), p.Info.Fragments, aggregate.AssocItems)
	if withItems {
		req.Associations = []string{aggregate.AssocItems}
	}

	result, err := r.pipeline.Run(p.Context, req)
	if err != nil {
		return nil, wrapLoadError(err)
	}
	var items aggregate.AssociationGroup
	if withItems {
		items = result.Groups[aggregate.AssocItems]
	}
	return orderMaps(projection.Project(result.Roots, items)), nil
}

// resolveSimpleOrders never loads lines, so the joined query carries only
// to-one associations and pagination goes into the statement.
func (r *Resolver) resolveSimpleOrders(p graphql.ResolveParams) (interface{}, error) {
	criteria, err := criteriaFromArgs(p.Args)
	if err != nil {
		return nil, wrapLoadError(err)
	}
	result, err := r.pipeline.Run(p.Context, loader.Request{
		Criteria: criteria,
		Strategy: loader.StrategyJoin,
	})
	if err != nil {
		return nil, wrapLoadError(err)
	}
	return orderMaps(projection.Project(result.Roots, nil)), nil
}

func criteriaFromArgs(args map[string]interface{}) (aggregate.Criteria, error) {
	var c aggregate.Criteria
	if status, ok := args["status"].(string); ok {
		c.Status = status
	}
	if name, ok := args["nameContains"].(string); ok {
		c.NameContains = name
	}
	if offset, ok := args["offset"].(int); ok {
		c.Offset = offset
	}
	if limit, ok := args["limit"]; ok && limit != nil {
		n, ok := limit.(int)
		if !ok {
			return c, &aggregate.ValidationError{Field: "limit", Message: fmt.Sprintf("expected integer, got %T", limit)}
		}
		if n == 0 {
			return c, &aggregate.ValidationError{Field: "limit", Message: "must be greater than 0"}
		}
		c.Limit = n
	}
	return c, nil
}

func firstFieldAST(fields []*ast.Field) *ast.Field {
	if len(fields) == 0 {
		return nil
	}
	return fields[0]
}

// selectsField reports whether field selects name directly or through
// fragments.
func selectsField(field *ast.Field, fragments map[string]ast.Definition, name string) bool {
	if field == nil || field.SelectionSet == nil {
		return false
	}
	visited := make(map[string]bool)
	var visit func(set *ast.SelectionSet) bool
	visit = func(set *ast.SelectionSet) bool {
		if set == nil {
			return false
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				if sel.Name != nil && sel.Name.Value == name {
					return true
				}
			case *ast.InlineFragment:
				if visit(sel.SelectionSet) {
					return true
				}
			case *ast.FragmentSpread:
				if sel.Name == nil || visited[sel.Name.Value] {
					continue
				}
				visited[sel.Name.Value] = true
				if frag, ok := fragments[sel.Name.Value].(*ast.FragmentDefinition); ok && visit(frag.SelectionSet) {
					return true
				}
			}
		}
		return false
	}
	return visit(field.SelectionSet)
}

func orderMaps(views []projection.OrderView) []map[string]interface{} {
	out := make([]map[string]interface{}, len(views))
	for i, v := range views {
		row := map[string]interface{}{
			"id":     strconv.FormatInt(v.ID, 10),
			"name":   v.Name,
			"status": v.Status,
			"address": map[string]interface{}{
				"city":    v.Address.City,
				"street":  v.Address.Street,
				"zipcode": v.Address.Zipcode,
			},
		}
		if !v.Date.IsZero() {
			row["date"] = v.Date
		}
		if v.Items != nil {
			items := make([]map[string]interface{}, len(v.Items))
			for j, item := range v.Items {
				items[j] = map[string]interface{}{
					"itemName": item.ItemName,
					"price":    item.Price,
					"quantity": item.Quantity,
				}
			}
			row[aggregate.AssocItems] = items
		}
		out[i] = row
	}
	return out
}

// loadError carries a client-facing code in the GraphQL error extensions.
type loadError struct {
	message string
	code    string
	err     error
}

func (e *loadError) Error() string {
	return e.message
}

func (e *loadError) Unwrap() error {
	return e.err
}

func (e *loadError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

// wrapLoadError hides store failures behind a generic message; the pipeline
// has already logged the cause with the request id.
func wrapLoadError(err error) error {
	code := aggregate.ErrorCode(err)
	message := err.Error()
	var queryErr *aggregate.QueryError
	if code == aggregate.CodeQueryFailed && errors.As(err, &queryErr) {
		message = "failed to load orders"
	}
	return &loadError{message: message, code: code, err: err}
}
