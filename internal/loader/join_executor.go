package loader

import (
	"context"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/planner"

	"go.opentelemetry.io/otel/attribute"
)

const phaseJoin = "join fetch"

// JoinResult is the deduplicated output of a joined query.
type JoinResult struct {
	Roots []aggregate.RootRecord
	// Groups is keyed by to-many association name and is empty when the
	// query joined none.
	Groups map[string]aggregate.AssociationGroup
	// Rows is the number of rows read before dedup.
	Rows int
	// Truncated is true when the statement had roots beyond the cap. Reading
	// stops at the first row of the first root past the cap.
	Truncated bool
}

// JoinFetchExecutor loads roots and their associations with one statement.
type JoinFetchExecutor struct {
	planner *planner.Planner
	root    aggregate.Root
}

// NewJoinFetchExecutor creates a join executor for root.
func NewJoinFetchExecutor(p *planner.Planner, root aggregate.Root) *JoinFetchExecutor {
	return &JoinFetchExecutor{planner: p, root: root}
}

// FindRootsWithJoin runs one statement joining every association in joins and
// collapses the repeated root rows produced by a to-many join, keeping the
// first occurrence of each root in statement order. Requests that join more
// than one to-many association fail with UnsupportedQueryError before any
// statement is issued.
//
// A joined statement without a page keeps at most the default page of roots,
// the same count the batch strategy returns for the same criteria. Rows are
// ordered by root id, so the scan stops once a root past the cap appears.
func (e *JoinFetchExecutor) FindRootsWithJoin(ctx context.Context, q dbexec.Querier, criteria aggregate.Criteria, joins []aggregate.Association, opts planner.JoinOptions) (result JoinResult, err error) {
	ctx, span := startLoaderSpan(ctx, "loader.find_roots_with_join",
		attribute.Int("loader.joins", len(joins)),
		attribute.Bool("loader.row_pagination", opts.RowPagination),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("loader.roots", len(result.Roots)),
			attribute.Int("loader.join.rows", result.Rows),
		)
		finishLoaderSpan(span, err)
		span.End()
	}()

	plan, err := e.planner.PlanJoinFetch(e.root, criteria, joins, opts)
	if err != nil {
		return JoinResult{}, err
	}

	rootCap := 0
	if !plan.Paginated {
		rootCap = e.planner.Limits().ResolvePage(criteria).Limit
	}

	roots := []aggregate.RootRecord{}
	index := make(map[int64]struct{})
	var group aggregate.AssociationGroup
	if plan.ToMany != "" {
		group = aggregate.AssociationGroup{}
	}
	rows := 0
	truncated := false

	err = runPlan(ctx, q, plan, phaseJoin, func(values []interface{}) error {
		root, err := rootFromRow(plan.Slots, values)
		if err != nil {
			return err
		}
		if _, seen := index[root.ID]; !seen {
			if rootCap > 0 && len(roots) == rootCap {
				truncated = true
				return errStopRows
			}
			index[root.ID] = struct{}{}
			roots = append(roots, root)
			if group != nil {
				group[root.ID] = []aggregate.ChildRecord{}
			}
		}
		rows++
		if group == nil {
			return nil
		}
		child, ok, err := childFromRow(plan.Slots, values, root.ID)
		if err != nil || !ok {
			return err
		}
		group.Add(child)
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}

	result = JoinResult{Roots: roots, Groups: map[string]aggregate.AssociationGroup{}, Rows: rows, Truncated: truncated}
	if group != nil {
		result.Groups[plan.ToMany] = group
	}
	return result, nil
}

// Duplicates is the number of joined rows that did not yield a returned root.
func (r JoinResult) Duplicates() int {
	if r.Rows < len(r.Roots) {
		return 0
	}
	return r.Rows - len(r.Roots)
}
