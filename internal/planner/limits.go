package planner

import "orders-graphql/internal/aggregate"

const (
	// DefaultMaxRows bounds every root page regardless of the requested limit.
	DefaultMaxRows = 1000
	// DefaultListLimit applies when a caller does not request a limit.
	DefaultListLimit = 100
)

// PlanLimits defines row limits applied during planning.
type PlanLimits struct {
	MaxRows      int
	DefaultLimit int
}

// Page is a resolved offset/limit pair.
type Page struct {
	Offset int
	Limit  int
}

func (l PlanLimits) normalized() PlanLimits {
	if l.MaxRows <= 0 {
		l.MaxRows = DefaultMaxRows
	}
	if l.DefaultLimit <= 0 || l.DefaultLimit > l.MaxRows {
		l.DefaultLimit = min(DefaultListLimit, l.MaxRows)
	}
	return l
}

// ResolvePage applies the default limit and clamps the limit to MaxRows.
// Limits above the cap are truncated rather than rejected.
func (l PlanLimits) ResolvePage(c aggregate.Criteria) Page {
	l = l.normalized()
	limit := c.Limit
	if limit <= 0 {
		limit = l.DefaultLimit
	}
	if limit > l.MaxRows {
		limit = l.MaxRows
	}
	offset := c.Offset
	if offset < 0 {
		offset = 0
	}
	return Page{Offset: offset, Limit: limit}
}

// CanPushdownPagination reports whether offset/limit may be applied in the
// statement itself. A to-many join repeats each root once per child, so a
// row-level LIMIT would count children instead of roots.
func CanPushdownPagination(hasToManyJoin bool) bool {
	return !hasToManyJoin
}
