// Package aggregate describes the order aggregate: which tables form it, how
// its associations are keyed, and the request-scoped records produced when it
// is loaded.
package aggregate

import (
	"errors"
	"fmt"
)

// Kind is the cardinality of an association seen from its owner.
type Kind int

const (
	ToOne Kind = iota + 1
	ToMany
)

func (k Kind) String() string {
	switch k {
	case ToOne:
		return "to-one"
	case ToMany:
		return "to-many"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Association describes how related rows hang off an owner row.
//
// For a to-one association LocalColumn is the foreign key on the owner and
// RemoteColumn the key on the target. For a to-many association LocalColumn is
// the owner's key and RemoteColumn the foreign key on the child table.
type Association struct {
	Name         string
	Kind         Kind
	Table        string
	Alias        string
	LocalColumn  string
	RemoteColumn string
	// IDColumn identifies a child row. Required for to-many associations.
	IDColumn string
	Columns  []string
	// Leaf is an optional to-one join resolved in the same statement as the
	// children. It never fans out the child rows.
	Leaf *Association
}

// Validate checks the descriptor is complete.
func (a Association) Validate() error {
	if a.Name == "" || a.Table == "" || a.Alias == "" {
		return errors.New("association requires name, table and alias")
	}
	if a.LocalColumn == "" || a.RemoteColumn == "" {
		return fmt.Errorf("association %s requires local and remote columns", a.Name)
	}
	switch a.Kind {
	case ToOne:
		if a.Leaf != nil {
			return fmt.Errorf("to-one association %s cannot declare a leaf", a.Name)
		}
	case ToMany:
		if a.IDColumn == "" {
			return fmt.Errorf("to-many association %s requires an id column", a.Name)
		}
		if a.Leaf != nil {
			if a.Leaf.Kind != ToOne {
				return fmt.Errorf("leaf of %s must be to-one", a.Name)
			}
			if err := a.Leaf.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("association %s has unknown kind", a.Name)
	}
	return nil
}

// ColumnRef points at a column through a table alias.
type ColumnRef struct {
	Alias  string
	Column string
}

// Root describes the aggregate root table and the associations that always
// travel with it.
type Root struct {
	Table    string
	Alias    string
	IDColumn string
	// Columns are selected after IDColumn.
	Columns      []string
	StatusColumn string
	Statuses     []string
	// NameFilter is the column matched by Criteria.NameContains.
	NameFilter ColumnRef
	ToOne      []Association
	ToMany     []Association
}

// ToOneByAlias returns the to-one association joined under alias.
func (r Root) ToOneByAlias(alias string) (Association, bool) {
	for _, assoc := range r.ToOne {
		if assoc.Alias == alias {
			return assoc, true
		}
	}
	return Association{}, false
}

// ToManyByName returns the named to-many association.
func (r Root) ToManyByName(name string) (Association, bool) {
	for _, assoc := range r.ToMany {
		if assoc.Name == name {
			return assoc, true
		}
	}
	return Association{}, false
}

// ValidStatus reports whether status is one of the root's statuses.
func (r Root) ValidStatus(status string) bool {
	for _, s := range r.Statuses {
		if s == status {
			return true
		}
	}
	return false
}
