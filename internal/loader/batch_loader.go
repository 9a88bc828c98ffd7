package loader

import (
	"context"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/planner"

	"go.opentelemetry.io/otel/attribute"
)

// AssociationBatchLoader fetches the children of a whole page of roots with
// one statement per to-many association.
type AssociationBatchLoader struct {
	planner *planner.Planner
}

// NewAssociationBatchLoader creates a batch loader.
func NewAssociationBatchLoader(p *planner.Planner) *AssociationBatchLoader {
	return &AssociationBatchLoader{planner: p}
}

// Load issues exactly one query for rootIDs and groups the children by parent
// id. Every id in rootIDs has an entry in the result, empty when the root has
// no children. Children of ids outside rootIDs are dropped.
func (l *AssociationBatchLoader) Load(ctx context.Context, q dbexec.Querier, rootIDs []int64, assoc aggregate.Association) (group aggregate.AssociationGroup, err error) {
	ctx, span := startLoaderSpan(ctx, "loader.load_association",
		attribute.String("loader.association", assoc.Name),
		attribute.Int("loader.batch.parent_count", len(rootIDs)),
	)
	rowCount := 0
	defer func() {
		span.SetAttributes(attribute.Int("loader.batch.result_rows", rowCount))
		finishLoaderSpan(span, err)
		span.End()
	}()

	plan, err := l.planner.PlanChildBatch(assoc, uniqueIDs(rootIDs))
	if err != nil {
		return nil, err
	}

	group = aggregate.NewAssociationGroup(rootIDs)
	err = runPlan(ctx, q, plan, "association "+assoc.Name, func(values []interface{}) error {
		rowCount++
		child, ok, err := childFromRow(plan.Slots, values, 0)
		if err != nil || !ok {
			return err
		}
		if _, known := group[child.ParentID]; known {
			group.Add(child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// uniqueIDs drops repeated ids while keeping first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
