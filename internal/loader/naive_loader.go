package loader

import (
	"context"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/planner"
)

// NaiveLoader resolves associations one root at a time. It issues
// 1 + N*K statements for N roots and K associations and exists as a
// reference point for the batch and join strategies.
type NaiveLoader struct {
	planner *planner.Planner
	root    aggregate.Root
}

// NewNaiveLoader creates a per-row loader for root.
func NewNaiveLoader(p *planner.Planner, root aggregate.Root) *NaiveLoader {
	return &NaiveLoader{planner: p, root: root}
}

// Load runs the root query, then one lookup per to-one association and one
// child query per to-many association for every root. A root whose foreign
// key is NULL skips that lookup.
func (l *NaiveLoader) Load(ctx context.Context, q dbexec.Querier, criteria aggregate.Criteria, toMany []aggregate.Association) ([]aggregate.RootRecord, map[string]aggregate.AssociationGroup, error) {
	ctx, span := startLoaderSpan(ctx, "loader.naive")
	var err error
	defer func() {
		finishLoaderSpan(span, err)
		span.End()
	}()

	plan, err := l.planner.PlanNaiveRoots(l.root, criteria)
	if err != nil {
		return nil, nil, err
	}
	roots, err := scanRoots(ctx, q, plan, phaseRoot)
	if err != nil {
		return nil, nil, err
	}

	ids := aggregate.RootIDs(roots)
	groups := make(map[string]aggregate.AssociationGroup, len(toMany))
	for _, assoc := range toMany {
		groups[assoc.Name] = aggregate.NewAssociationGroup(ids)
	}

	for i := range roots {
		for _, assoc := range l.root.ToOne {
			key := roots[i].Fields[assoc.LocalColumn]
			if key == nil {
				continue
			}
			var fields aggregate.Fields
			fields, err = l.lookupToOne(ctx, q, assoc, key)
			if err != nil {
				return nil, nil, err
			}
			if fields != nil {
				if roots[i].ToOne == nil {
					roots[i].ToOne = make(map[string]aggregate.Fields)
				}
				roots[i].ToOne[assoc.Name] = fields
			}
		}
		for _, assoc := range toMany {
			var childPlan planner.Plan
			childPlan, err = l.planner.PlanChildrenOf(assoc, roots[i].ID)
			if err != nil {
				return nil, nil, err
			}
			group := groups[assoc.Name]
			err = runPlan(ctx, q, childPlan, "association "+assoc.Name, func(values []interface{}) error {
				child, ok, err := childFromRow(childPlan.Slots, values, 0)
				if err != nil || !ok {
					return err
				}
				group.Add(child)
				return nil
			})
			if err != nil {
				return nil, nil, err
			}
		}
	}
	return roots, groups, nil
}

func (l *NaiveLoader) lookupToOne(ctx context.Context, q dbexec.Querier, assoc aggregate.Association, key interface{}) (aggregate.Fields, error) {
	plan, err := l.planner.PlanToOneLookup(assoc, key)
	if err != nil {
		return nil, err
	}
	var fields aggregate.Fields
	err = runPlan(ctx, q, plan, "lookup "+assoc.Name, func(values []interface{}) error {
		if fields == nil {
			fields = toOneFromRow(plan.Slots, values)
		}
		return nil
	})
	return fields, err
}
