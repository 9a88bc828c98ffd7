package planner

import (
	"fmt"

	"orders-graphql/internal/aggregate"

	sq "github.com/Masterminds/squirrel"
)

// PlanChildBatch builds one statement fetching the children of every parent
// id through an IN (set) predicate. An empty id set renders as a false
// predicate so the statement is still valid and returns no rows.
func (p *Planner) PlanChildBatch(assoc aggregate.Association, parentIDs []int64) (Plan, error) {
	ids := make([]interface{}, len(parentIDs))
	for i, id := range parentIDs {
		ids[i] = id
	}
	return p.planChildren(assoc, ids)
}

// PlanChildrenOf builds the per-parent statement used by the naive strategy.
func (p *Planner) PlanChildrenOf(assoc aggregate.Association, parentID int64) (Plan, error) {
	return p.planChildren(assoc, parentID)
}

func (p *Planner) planChildren(assoc aggregate.Association, parentKey interface{}) (Plan, error) {
	if assoc.Kind != aggregate.ToMany {
		return Plan{}, fmt.Errorf("association %s is %s, child plans require to-many", assoc.Name, assoc.Kind)
	}
	if err := assoc.Validate(); err != nil {
		return Plan{}, err
	}

	parentCol := p.dialect.Qualify(assoc.Alias, assoc.RemoteColumn)
	builder := sq.Select(parentCol).From(p.tableAs(assoc.Table, assoc.Alias))
	slots := []Slot{{Kind: SlotParent, Association: assoc.Name, Column: assoc.RemoteColumn, Key: true}}
	builder, slots = p.selectChild(builder, slots, assoc)

	builder = builder.
		Where(sq.Eq{parentCol: parentKey}).
		OrderBy(parentCol, p.dialect.Qualify(assoc.Alias, assoc.IDColumn))

	query, err := p.render(builder)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Query: query, Slots: slots, ToMany: assoc.Name}, nil
}

// selectChild selects the child id, its columns and, through a left join,
// the leaf columns. The leaf is to-one so it never multiplies child rows.
func (p *Planner) selectChild(builder sq.SelectBuilder, slots []Slot, assoc aggregate.Association) (sq.SelectBuilder, []Slot) {
	builder = builder.Column(p.dialect.Qualify(assoc.Alias, assoc.IDColumn))
	slots = append(slots, Slot{Kind: SlotChild, Association: assoc.Name, Column: assoc.IDColumn, Key: true})
	for _, col := range assoc.Columns {
		builder = builder.Column(p.dialect.Qualify(assoc.Alias, col))
		slots = append(slots, Slot{Kind: SlotChild, Association: assoc.Name, Column: col})
	}
	if assoc.Leaf != nil {
		leaf := *assoc.Leaf
		builder = builder.LeftJoin(p.joinClause(assoc.Alias, leaf))
		for _, col := range leaf.Columns {
			builder = builder.Column(p.dialect.Qualify(leaf.Alias, col))
			slots = append(slots, Slot{Kind: SlotLeaf, Association: assoc.Name, Column: col})
		}
	}
	return builder, slots
}
