// Package planner builds the SQL statements used to load order aggregates.
// Every plan carries its scan layout so rows can be mapped back to records
// without inspecting driver column names.
package planner

import (
	"fmt"
	"strings"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// SlotKind says which record a selected column belongs to.
type SlotKind int

const (
	// SlotRoot is a root column.
	SlotRoot SlotKind = iota
	// SlotToOne is a column of a to-one association of the root.
	SlotToOne
	// SlotForeignKey is a root foreign key used for a later to-one lookup.
	SlotForeignKey
	// SlotParent is the owner key of a child row.
	SlotParent
	// SlotChild is a column of a to-many child row.
	SlotChild
	// SlotLeaf is a column of the leaf joined from a child row.
	SlotLeaf
)

// Slot describes one selected column.
type Slot struct {
	Kind        SlotKind
	Association string
	Column      string
	// Key marks the identity column of the root or child record.
	Key bool
}

// Plan is a statement plus the layout of its result columns.
type Plan struct {
	Query SQLQuery
	Slots []Slot
	// ToMany names the to-many association whose rows are fanned into the
	// result, empty when none is joined.
	ToMany string
	// Paginated is true when LIMIT/OFFSET were applied in the statement.
	Paginated bool
}

// Planner renders plans for one SQL dialect.
type Planner struct {
	dialect sqlutil.Dialect
	limits  PlanLimits
}

// New creates a planner.
func New(dialect sqlutil.Dialect, limits PlanLimits) *Planner {
	return &Planner{dialect: dialect, limits: limits.normalized()}
}

// Limits returns the normalized limits used by the planner.
func (p *Planner) Limits() PlanLimits {
	return p.limits
}

// PlanRoots builds the root page query. To-one associations are joined and
// selected; pagination is always pushed down because nothing fans out.
func (p *Planner) PlanRoots(root aggregate.Root, c aggregate.Criteria) (Plan, error) {
	if err := c.Validate(root); err != nil {
		return Plan{}, err
	}
	builder, slots := p.selectRoot(root)
	for _, assoc := range root.ToOne {
		builder, slots = p.joinToOne(builder, slots, root.Alias, assoc, true)
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

func (p *Planner) selectRoot(root aggregate.Root) (sq.SelectBuilder, []Slot) {
	cols := make([]string, 0, len(root.Columns)+1)
	slots := make([]Slot, 0, len(root.Columns)+1)

	cols = append(cols, p.dialect.Qualify(root.Alias, root.IDColumn))
	slots = append(slots, Slot{Kind: SlotRoot, Column: root.IDColumn, Key: true})
	for _, col := range root.Columns {
		cols = append(cols, p.dialect.Qualify(root.Alias, col))
		slots = append(slots, Slot{Kind: SlotRoot, Column: col})
	}
	builder := sq.Select(cols...).From(p.tableAs(root.Table, root.Alias))
	return builder, slots
}

// joinToOne adds an inner join to a to-one association, selecting its
// columns when selected is true.
func (p *Planner) joinToOne(builder sq.SelectBuilder, slots []Slot, ownerAlias string, assoc aggregate.Association, selected bool) (sq.SelectBuilder, []Slot) {
	builder = builder.Join(p.joinClause(ownerAlias, assoc))
	if !selected {
		return builder, slots
	}
	for _, col := range assoc.Columns {
		builder = builder.Column(p.dialect.Qualify(assoc.Alias, col))
		slots = append(slots, Slot{Kind: SlotToOne, Association: assoc.Name, Column: col})
	}
	return builder, slots
}

func (p *Planner) joinClause(ownerAlias string, assoc aggregate.Association) string {
	return fmt.Sprintf("%s ON %s = %s",
		p.tableAs(assoc.Table, assoc.Alias),
		p.dialect.Qualify(assoc.Alias, assoc.RemoteColumn),
		p.dialect.Qualify(ownerAlias, assoc.LocalColumn),
	)
}

func (p *Planner) tableAs(table, alias string) string {
	return p.dialect.QuoteIdentifier(table) + " AS " + p.dialect.QuoteIdentifier(alias)
}

// applyFilters AND-combines the filters that are present. Absent filters add
// nothing to the statement.
func (p *Planner) applyFilters(builder sq.SelectBuilder, root aggregate.Root, c aggregate.Criteria) sq.SelectBuilder {
	if c.HasStatus() {
		builder = builder.Where(sq.Eq{p.dialect.Qualify(root.Alias, root.StatusColumn): c.Status})
	}
	if c.HasName() {
		column := p.dialect.Qualify(root.NameFilter.Alias, root.NameFilter.Column)
		builder = builder.Where(
			column+" LIKE ? ESCAPE "+sqlutil.QuoteString(sqlutil.LikeEscape),
			sqlutil.ContainsPattern(strings.TrimSpace(c.NameContains)),
		)
	}
	return builder
}

func (p *Planner) applyPage(builder sq.SelectBuilder, page Page) sq.SelectBuilder {
	builder = builder.Limit(uint64(page.Limit))
	if page.Offset > 0 {
		builder = builder.Offset(uint64(page.Offset))
	}
	return builder
}

func (p *Planner) render(builder sq.SelectBuilder) (SQLQuery, error) {
	query, args, err := builder.PlaceholderFormat(p.dialect.Placeholder()).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}
