package planner

import (
	"fmt"

	"orders-graphql/internal/aggregate"

	sq "github.com/Masterminds/squirrel"
)

// PlanNaiveRoots builds the root query of the per-row strategy. It selects
// the root columns and the foreign keys of its to-one associations; those
// associations are looked up one row at a time afterwards.
func (p *Planner) PlanNaiveRoots(root aggregate.Root, c aggregate.Criteria) (Plan, error) {
	if err := c.Validate(root); err != nil {
		return Plan{}, err
	}
	builder, slots := p.selectRoot(root)
	for _, assoc := range root.ToOne {
		builder = builder.Column(p.dialect.Qualify(root.Alias, assoc.LocalColumn))
		slots = append(slots, Slot{Kind: SlotForeignKey, Association: assoc.Name, Column: assoc.LocalColumn})
	}
	if c.HasName() && root.NameFilter.Alias != root.Alias {
		if assoc, ok := root.ToOneByAlias(root.NameFilter.Alias); ok {
			builder, slots = p.joinToOne(builder, slots, root.Alias, assoc, false)
		}
	}
	builder = p.applyFilters(builder, root, c)
	builder = builder.OrderBy(p.dialect.Qualify(root.Alias, root.IDColumn))
	builder = p.applyPage(builder, p.limits.ResolvePage(c))

	query, err := p.render(builder)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Query: query, Slots: slots, Paginated: true}, nil
}

// PlanToOneLookup builds a single-row lookup of a to-one association by key.
func (p *Planner) PlanToOneLookup(assoc aggregate.Association, key interface{}) (Plan, error) {
	if assoc.Kind != aggregate.ToOne {
		return Plan{}, fmt.Errorf("association %s is %s, lookups require to-one", assoc.Name, assoc.Kind)
	}
	cols := make([]string, len(assoc.Columns))
	slots := make([]Slot, len(assoc.Columns))
	for i, col := range assoc.Columns {
		cols[i] = p.dialect.Qualify(assoc.Alias, col)
		slots[i] = Slot{Kind: SlotToOne, Association: assoc.Name, Column: col}
	}
	builder := sq.Select(cols...).
		From(p.tableAs(assoc.Table, assoc.Alias)).
		Where(sq.Eq{p.dialect.Qualify(assoc.Alias, assoc.RemoteColumn): key})

	query, err := p.render(builder)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Query: query, Slots: slots}, nil
}
