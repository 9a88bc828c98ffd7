package planner

import (
	"orders-graphql/internal/aggregate"
)

// JoinOptions tunes PlanJoinFetch.
type JoinOptions struct {
	// RowPagination applies an explicit offset/limit to the joined row
	// stream even when a to-many association is joined. The page then
	// counts rows before deduplication and undercounts roots.
	RowPagination bool
}

// PlanJoinFetch builds a single statement joining the root with every
// declared association. At most one to-many association may be declared;
// joining two would return the cross product of both collections.
//
// Without a to-many join the page is pushed down as usual. With one, an
// explicit page is rejected unless opts.RowPagination is set, and no LIMIT is
// emitted when no page was requested.
func (p *Planner) PlanJoinFetch(root aggregate.Root, c aggregate.Criteria, joins []aggregate.Association, opts JoinOptions) (Plan, error) {
	var toMany []aggregate.Association
	for _, assoc := range joins {
		if assoc.Kind == aggregate.ToMany {
			toMany = append(toMany, assoc)
		}
	}
	if len(toMany) > 1 {
		names := make([]string, len(toMany))
		for i, assoc := range toMany {
			names[i] = assoc.Name
		}
		return Plan{}, &aggregate.UnsupportedQueryError{
			Reason:       "a joined query may fetch at most one to-many association",
			Associations: names,
		}
	}
	if err := c.Validate(root); err != nil {
		return Plan{}, err
	}
	for _, assoc := range joins {
		if err := assoc.Validate(); err != nil {
			return Plan{}, err
		}
	}

	hasToMany := len(toMany) == 1
	pushdown := CanPushdownPagination(hasToMany)
	if !pushdown && c.Paginated() && !opts.RowPagination {
		return Plan{}, &aggregate.UnsupportedQueryError{
			Reason:       "pagination cannot be applied to a query that joins a to-many association",
			Associations: []string{toMany[0].Name},
		}
	}

	builder, slots := p.selectRoot(root)
	filterJoined := !c.HasName() || root.NameFilter.Alias == root.Alias
	for _, assoc := range joins {
		if assoc.Kind != aggregate.ToOne {
			continue
		}
		builder, slots = p.joinToOne(builder, slots, root.Alias, assoc, true)
		if assoc.Alias == root.NameFilter.Alias {
			filterJoined = true
		}
	}
	if !filterJoined {
		if filterAssoc, ok := root.ToOneByAlias(root.NameFilter.Alias); ok {
			builder, slots = p.joinToOne(builder, slots, root.Alias, filterAssoc, false)
		}
	}

	orderBy := []string{p.dialect.Qualify(root.Alias, root.IDColumn)}
	plan := Plan{}
	if hasToMany {
		assoc := toMany[0]
		builder = builder.LeftJoin(p.joinClause(root.Alias, assoc))
		builder, slots = p.selectChild(builder, slots, assoc)
		orderBy = append(orderBy, p.dialect.Qualify(assoc.Alias, assoc.IDColumn))
		plan.ToMany = assoc.Name
	}

	builder = p.applyFilters(builder, root, c)
	builder = builder.OrderBy(orderBy...)
	switch {
	case pushdown:
		builder = p.applyPage(builder, p.limits.ResolvePage(c))
		plan.Paginated = true
	case c.Paginated() && opts.RowPagination:
		builder = p.applyPage(builder, p.limits.ResolvePage(c))
		plan.Paginated = true
	}

	query, err := p.render(builder)
	if err != nil {
		return Plan{}, err
	}
	plan.Query = query
	plan.Slots = slots
	return plan, nil
}
