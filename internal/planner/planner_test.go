package planner

import (
	"testing"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/sqlutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mysqlRootSelect = "SELECT `o`.`id`, `o`.`order_date`, `o`.`status`, `m`.`name`, `d`.`city`, `d`.`street`, `d`.`zipcode` " +
		"FROM `orders` AS `o` " +
		"JOIN `members` AS `m` ON `m`.`id` = `o`.`member_id` " +
		"JOIN `deliveries` AS `d` ON `d`.`id` = `o`.`delivery_id`"
)

func newTestPlanner(dialect sqlutil.Dialect) *Planner {
	return New(dialect, PlanLimits{MaxRows: 1000, DefaultLimit: 100})
}

func TestPlanRoots(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectMySQL)
	root := aggregate.Orders()

	tests := []struct {
		name     string
		criteria aggregate.Criteria
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "no filters uses default limit",
			criteria: aggregate.Criteria{},
			wantSQL:  mysqlRootSelect + " ORDER BY `o`.`id` LIMIT 100",
		},
		{
			name:     "status only",
			criteria: aggregate.Criteria{Status: aggregate.StatusOrder, Limit: 10},
			wantSQL:  mysqlRootSelect + " WHERE `o`.`status` = ? ORDER BY `o`.`id` LIMIT 10",
			wantArgs: []interface{}{"ORDER"},
		},
		{
			name:     "name only",
			criteria: aggregate.Criteria{NameContains: "kim", Limit: 10},
			wantSQL:  mysqlRootSelect + " WHERE `m`.`name` LIKE ? ESCAPE '!' ORDER BY `o`.`id` LIMIT 10",
			wantArgs: []interface{}{"%kim%"},
		},
		{
			name:     "name is trimmed before matching",
			criteria: aggregate.Criteria{NameContains: " kim\t", Limit: 10},
			wantSQL:  mysqlRootSelect + " WHERE `m`.`name` LIKE ? ESCAPE '!' ORDER BY `o`.`id` LIMIT 10",
			wantArgs: []interface{}{"%kim%"},
		},
		{
			name:     "both filters are combined with AND",
			criteria: aggregate.Criteria{Status: aggregate.StatusCancel, NameContains: "100%", Offset: 5, Limit: 10},
			wantSQL:  mysqlRootSelect + " WHERE `o`.`status` = ? AND `m`.`name` LIKE ? ESCAPE '!' ORDER BY `o`.`id` LIMIT 10 OFFSET 5",
			wantArgs: []interface{}{"CANCEL", "%100!%%"},
		},
		{
			name:     "limit above cap is truncated",
			criteria: aggregate.Criteria{Limit: 5000},
			wantSQL:  mysqlRootSelect + " ORDER BY `o`.`id` LIMIT 1000",
		},
		{
			name:     "blank name filter is omitted",
			criteria: aggregate.Criteria{NameContains: "  ", Limit: 1},
			wantSQL:  mysqlRootSelect + " ORDER BY `o`.`id` LIMIT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.PlanRoots(root, tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, plan.Query.SQL)
			assert.Equal(t, tt.wantArgs, plan.Query.Args)
			assert.True(t, plan.Paginated)
			assert.Empty(t, plan.ToMany)
		})
	}
}

func TestPlanRootsSlots(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectMySQL)
	plan, err := p.PlanRoots(aggregate.Orders(), aggregate.Criteria{})
	require.NoError(t, err)

	assert.Equal(t, []Slot{
		{Kind: SlotRoot, Column: "id", Key: true},
		{Kind: SlotRoot, Column: "order_date"},
		{Kind: SlotRoot, Column: "status"},
		{Kind: SlotToOne, Association: "member", Column: "name"},
		{Kind: SlotToOne, Association: "delivery", Column: "city"},
		{Kind: SlotToOne, Association: "delivery", Column: "street"},
		{Kind: SlotToOne, Association: "delivery", Column: "zipcode"},
	}, plan.Slots)
}

func TestPlanRootsPostgres(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectPostgres)
	plan, err := p.PlanRoots(aggregate.Orders(), aggregate.Criteria{Status: aggregate.StatusOrder, NameContains: "lee", Limit: 2})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "o"."id", "o"."order_date", "o"."status", "m"."name", "d"."city", "d"."street", "d"."zipcode" `+
			`FROM "orders" AS "o" `+
			`JOIN "members" AS "m" ON "m"."id" = "o"."member_id" `+
			`JOIN "deliveries" AS "d" ON "d"."id" = "o"."delivery_id" `+
			`WHERE "o"."status" = $1 AND "m"."name" LIKE $2 ESCAPE '!' ORDER BY "o"."id" LIMIT 2`,
		plan.Query.SQL)
	assert.Equal(t, []interface{}{"ORDER", "%lee%"}, plan.Query.Args)
}

func TestPlanRootsRejectsMalformedCriteria(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectMySQL)
	_, err := p.PlanRoots(aggregate.Orders(), aggregate.Criteria{Limit: -1})
	var validation *aggregate.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "limit", validation.Field)
}

func TestPlanChildBatch(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectMySQL)

	t.Run("one IN predicate for all parents", func(t *testing.T) {
		plan, err := p.PlanChildBatch(aggregate.OrderItemsAssociation, []int64{1, 2, 7})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `oi`.`order_id`, `oi`.`id`, `oi`.`order_price`, `oi`.`count`, `i`.`name` "+
				"FROM `order_items` AS `oi` LEFT JOIN `items` AS `i` ON `i`.`id` = `oi`.`item_id` "+
				"WHERE `oi`.`order_id` IN (?,?,?) ORDER BY `oi`.`order_id`, `oi`.`id`",
			plan.Query.SQL)
		assert.Equal(t, []interface{}{int64(1), int64(2), int64(7)}, plan.Query.Args)
		assert.Equal(t, "items", plan.ToMany)
		assert.Equal(t, []Slot{
			{Kind: SlotParent, Association: "items", Column: "order_id", Key: true},
			{Kind: SlotChild, Association: "items", Column: "id", Key: true},
			{Kind: SlotChild, Association: "items", Column: "order_price"},
			{Kind: SlotChild, Association: "items", Column: "count"},
			{Kind: SlotLeaf, Association: "items", Column: "name"},
		}, plan.Slots)
	})

	t.Run("empty parent set is a false predicate", func(t *testing.T) {
		plan, err := p.PlanChildBatch(aggregate.OrderItemsAssociation, nil)
		require.NoError(t, err)
		assert.Contains(t, plan.Query.SQL, "WHERE (1=0)")
		assert.Empty(t, plan.Query.Args)
	})

	t.Run("rejects to-one association", func(t *testing.T) {
		_, err := p.PlanChildBatch(aggregate.MemberAssociation, []int64{1})
		assert.Error(t, err)
	})
}

func TestPlanChildrenOf(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectSQLite)
	plan, err := p.PlanChildrenOf(aggregate.OrderItemsAssociation, 4)
	require.NoError(t, err)
	assert.Contains(t, plan.Query.SQL, "WHERE `oi`.`order_id` = ?")
	assert.Equal(t, []interface{}{int64(4)}, plan.Query.Args)
}

func TestPlanJoinFetch(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectMySQL)
	root := aggregate.Orders()
	all := []aggregate.Association{aggregate.MemberAssociation, aggregate.DeliveryAssociation, aggregate.OrderItemsAssociation}

	t.Run("to-many join without page has no LIMIT", func(t *testing.T) {
		plan, err := p.PlanJoinFetch(root, aggregate.Criteria{Status: aggregate.StatusOrder}, all, JoinOptions{})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `o`.`id`, `o`.`order_date`, `o`.`status`, `m`.`name`, `d`.`city`, `d`.`street`, `d`.`zipcode`, "+
				"`oi`.`id`, `oi`.`order_price`, `oi`.`count`, `i`.`name` "+
				"FROM `orders` AS `o` "+
				"JOIN `members` AS `m` ON `m`.`id` = `o`.`member_id` "+
				"JOIN `deliveries` AS `d` ON `d`.`id` = `o`.`delivery_id` "+
				"LEFT JOIN `order_items` AS `oi` ON `oi`.`order_id` = `o`.`id` "+
				"LEFT JOIN `items` AS `i` ON `i`.`id` = `oi`.`item_id` "+
				"WHERE `o`.`status` = ? ORDER BY `o`.`id`, `oi`.`id`",
			plan.Query.SQL)
		assert.Equal(t, "items", plan.ToMany)
		assert.False(t, plan.Paginated)
	})

	t.Run("to-one joins push pagination down", func(t *testing.T) {
		plan, err := p.PlanJoinFetch(root, aggregate.Criteria{Offset: 2, Limit: 3}, all[:2], JoinOptions{})
		require.NoError(t, err)
		assert.Equal(t, mysqlRootSelect+" ORDER BY `o`.`id` LIMIT 3 OFFSET 2", plan.Query.SQL)
		assert.True(t, plan.Paginated)
		assert.Empty(t, plan.ToMany)
	})

	t.Run("explicit page with to-many join is rejected", func(t *testing.T) {
		_, err := p.PlanJoinFetch(root, aggregate.Criteria{Limit: 1}, all, JoinOptions{})
		var unsupported *aggregate.UnsupportedQueryError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, []string{"items"}, unsupported.Associations)
	})

	t.Run("row pagination applies the page to joined rows", func(t *testing.T) {
		plan, err := p.PlanJoinFetch(root, aggregate.Criteria{Limit: 1}, all, JoinOptions{RowPagination: true})
		require.NoError(t, err)
		assert.Contains(t, plan.Query.SQL, "ORDER BY `o`.`id`, `oi`.`id` LIMIT 1")
		assert.True(t, plan.Paginated)
	})

	t.Run("two to-many associations are rejected", func(t *testing.T) {
		payments := aggregate.Association{
			Name: "payments", Kind: aggregate.ToMany, Table: "payments", Alias: "p",
			LocalColumn: "id", RemoteColumn: "order_id", IDColumn: "id", Columns: []string{"amount"},
		}
		_, err := p.PlanJoinFetch(root, aggregate.Criteria{}, append(all, payments), JoinOptions{})
		var unsupported *aggregate.UnsupportedQueryError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, []string{"items", "payments"}, unsupported.Associations)
	})

	t.Run("name filter joins member when not declared", func(t *testing.T) {
		plan, err := p.PlanJoinFetch(root, aggregate.Criteria{NameContains: "kim"}, []aggregate.Association{aggregate.DeliveryAssociation}, JoinOptions{})
		require.NoError(t, err)
		assert.Equal(t,
			"SELECT `o`.`id`, `o`.`order_date`, `o`.`status`, `d`.`city`, `d`.`street`, `d`.`zipcode` "+
				"FROM `orders` AS `o` "+
				"JOIN `deliveries` AS `d` ON `d`.`id` = `o`.`delivery_id` "+
				"JOIN `members` AS `m` ON `m`.`id` = `o`.`member_id` "+
				"WHERE `m`.`name` LIKE ? ESCAPE '!' ORDER BY `o`.`id` LIMIT 100",
			plan.Query.SQL)
	})
}

func TestPlanNaive(t *testing.T) {
	p := newTestPlanner(sqlutil.DialectMySQL)

	plan, err := p.PlanNaiveRoots(aggregate.Orders(), aggregate.Criteria{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `o`.`id`, `o`.`order_date`, `o`.`status`, `o`.`member_id`, `o`.`delivery_id` FROM `orders` AS `o` ORDER BY `o`.`id` LIMIT 5",
		plan.Query.SQL)
	assert.Equal(t, SlotForeignKey, plan.Slots[3].Kind)
	assert.Equal(t, "member", plan.Slots[3].Association)

	lookup, err := p.PlanToOneLookup(aggregate.MemberAssociation, int64(9))
	require.NoError(t, err)
	assert.Equal(t, "SELECT `m`.`name` FROM `members` AS `m` WHERE `m`.`id` = ?", lookup.Query.SQL)
	assert.Equal(t, []interface{}{int64(9)}, lookup.Query.Args)

	_, err = p.PlanToOneLookup(aggregate.OrderItemsAssociation, int64(9))
	assert.Error(t, err)
}

func TestResolvePage(t *testing.T) {
	limits := PlanLimits{MaxRows: 50, DefaultLimit: 20}
	assert.Equal(t, Page{Offset: 0, Limit: 20}, limits.ResolvePage(aggregate.Criteria{}))
	assert.Equal(t, Page{Offset: 4, Limit: 50}, limits.ResolvePage(aggregate.Criteria{Offset: 4, Limit: 51}))
	assert.Equal(t, Page{Offset: 0, Limit: 1}, limits.ResolvePage(aggregate.Criteria{Limit: 1}))

	defaults := PlanLimits{}.normalized()
	assert.Equal(t, DefaultMaxRows, defaults.MaxRows)
	assert.Equal(t, DefaultListLimit, defaults.DefaultLimit)

	small := PlanLimits{MaxRows: 10}.normalized()
	assert.Equal(t, 10, small.DefaultLimit)
}

func TestCanPushdownPagination(t *testing.T) {
	assert.True(t, CanPushdownPagination(false))
	assert.False(t, CanPushdownPagination(true))
}
