package loader

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"orders-graphql/internal/aggregate"
	"orders-graphql/internal/dbexec"
	"orders-graphql/internal/planner"
)

// errStopRows ends a scan early without failing it.
var errStopRows = errors.New("stop reading rows")

// runPlan executes plan and hands every scanned row to visit. Values are
// normalized so driver byte slices never escape the scan buffer. A visitor
// returning errStopRows closes the statement and ends the scan normally.
// Other visitor errors are rows the loader could not decode.
func runPlan(ctx context.Context, q dbexec.Querier, plan planner.Plan, phase string, visit func([]interface{}) error) error {
	rows, err := q.QueryContext(ctx, plan.Query.SQL, plan.Query.Args...)
	if err != nil {
		return &aggregate.QueryError{Phase: phase, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]interface{}, len(plan.Slots))
		valuePtrs := make([]interface{}, len(plan.Slots))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return &aggregate.QueryError{Phase: phase, Err: err}
		}
		for i := range values {
			values[i] = convertValue(values[i])
		}
		if err := visit(values); err != nil {
			if errors.Is(err, errStopRows) {
				return nil
			}
			return &aggregate.QueryError{Phase: phase, Err: fmt.Errorf("decode row: %w", err)}
		}
	}
	if err := rows.Err(); err != nil {
		return &aggregate.QueryError{Phase: phase, Err: err}
	}
	return nil
}

func convertValue(val interface{}) interface{} {
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

// rootFromRow builds a root record from the root and to-one slots of a row.
func rootFromRow(slots []planner.Slot, values []interface{}) (aggregate.RootRecord, error) {
	root := aggregate.RootRecord{Fields: aggregate.Fields{}}
	for i, slot := range slots {
		switch slot.Kind {
		case planner.SlotRoot:
			if slot.Key {
				id, err := toInt64(values[i])
				if err != nil {
					return aggregate.RootRecord{}, fmt.Errorf("root %s: %w", slot.Column, err)
				}
				root.ID = id
			}
			root.Fields[slot.Column] = values[i]
		case planner.SlotToOne, planner.SlotForeignKey:
			if slot.Kind == planner.SlotForeignKey {
				root.Fields[slot.Column] = values[i]
				continue
			}
			if root.ToOne == nil {
				root.ToOne = make(map[string]aggregate.Fields)
			}
			fields, ok := root.ToOne[slot.Association]
			if !ok {
				fields = aggregate.Fields{}
				root.ToOne[slot.Association] = fields
			}
			fields[slot.Column] = values[i]
		}
	}
	return root, nil
}

// childFromRow builds a child record from the child slots of a row. The
// second return is false when the row carries no child, which happens for
// roots without children in a left-joined query.
func childFromRow(slots []planner.Slot, values []interface{}, parentID int64) (aggregate.ChildRecord, bool, error) {
	child := aggregate.ChildRecord{ParentID: parentID, Fields: aggregate.Fields{}}
	present := false
	leafPresent := false
	for i, slot := range slots {
		switch slot.Kind {
		case planner.SlotParent:
			id, err := toInt64(values[i])
			if err != nil {
				return aggregate.ChildRecord{}, false, fmt.Errorf("child parent %s: %w", slot.Column, err)
			}
			child.ParentID = id
		case planner.SlotChild:
			if slot.Key {
				if values[i] == nil {
					return aggregate.ChildRecord{}, false, nil
				}
				id, err := toInt64(values[i])
				if err != nil {
					return aggregate.ChildRecord{}, false, fmt.Errorf("child %s: %w", slot.Column, err)
				}
				child.ID = id
				present = true
			}
			child.Fields[slot.Column] = values[i]
		case planner.SlotLeaf:
			if child.Leaf == nil {
				child.Leaf = aggregate.Fields{}
			}
			child.Leaf[slot.Column] = values[i]
			if values[i] != nil {
				leafPresent = true
			}
		}
	}
	if !leafPresent {
		child.Leaf = nil
	}
	return child, present, nil
}

// toOneFromRow collects the columns of a single to-one lookup row.
func toOneFromRow(slots []planner.Slot, values []interface{}) aggregate.Fields {
	fields := make(aggregate.Fields, len(slots))
	for i, slot := range slots {
		fields[slot.Column] = values[i]
	}
	return fields
}

func toInt64(val interface{}) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, fmt.Errorf("unexpected NULL key")
	default:
		return 0, fmt.Errorf("unsupported key type %T", val)
	}
}
