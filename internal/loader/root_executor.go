// Package loader resolves order aggregates from the store without issuing
// one query per root. It offers a two-phase batch strategy (the default), a
// single joined query, and a per-row baseline used for comparison.
package loader

import (
	"context"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/planner"

	"go.opentelemetry.io/otel/attribute"
)

const phaseRoot = "root"

// RootQueryExecutor runs the filtered, paginated root query with to-one
// associations joined.
type RootQueryExecutor struct {
	planner *planner.Planner
	root    aggregate.Root
}

// NewRootQueryExecutor creates an executor for root.
func NewRootQueryExecutor(p *planner.Planner, root aggregate.Root) *RootQueryExecutor {
	return &RootQueryExecutor{planner: p, root: root}
}

// FindRoots returns at most min(criteria.Limit, MaxRows) roots ordered by id.
func (e *RootQueryExecutor) FindRoots(ctx context.Context, q dbexec.Querier, criteria aggregate.Criteria) (roots []aggregate.RootRecord, err error) {
	ctx, span := startLoaderSpan(ctx, "loader.find_roots",
		attribute.Bool("loader.filter.status", criteria.HasStatus()),
		attribute.Bool("loader.filter.name", criteria.HasName()),
	)
	defer func() {
		span.SetAttributes(attribute.Int("loader.roots", len(roots)))
		finishLoaderSpan(span, err)
		span.End()
	}()

	plan, err := e.planner.PlanRoots(e.root, criteria)
	if err != nil {
		return nil, err
	}
	return scanRoots(ctx, q, plan, phaseRoot)
}

func scanRoots(ctx context.Context, q dbexec.Querier, plan planner.Plan, phase string) ([]aggregate.RootRecord, error) {
	roots := []aggregate.RootRecord{}
	err := runPlan(ctx, q, plan, phase, func(values []interface{}) error {
		root, err := rootFromRow(plan.Slots, values)
		if err != nil {
			return err
		}
		roots = append(roots, root)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roots, nil
}
