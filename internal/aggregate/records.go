package aggregate

// Fields holds scanned column values keyed by column name.
type Fields map[string]any

// RootRecord is one root row with its to-one associations resolved.
type RootRecord struct {
	ID     int64
	Fields Fields
	// ToOne is keyed by association name. A missing key means the
	// association row was absent.
	ToOne map[string]Fields
}

// ChildRecord is one row of a to-many association. It refers to its owner by
// id only.
type ChildRecord struct {
	ParentID int64
	ID       int64
	Fields   Fields
	// Leaf holds the leaf association columns, nil when the leaf row is absent.
	Leaf Fields
}

// AssociationGroup maps a root id to its children in query order.
type AssociationGroup map[int64][]ChildRecord

// NewAssociationGroup returns a group with an empty entry for every id.
func NewAssociationGroup(ids []int64) AssociationGroup {
	group := make(AssociationGroup, len(ids))
	for _, id := range ids {
		group[id] = []ChildRecord{}
	}
	return group
}

// Add appends a child under its parent id.
func (g AssociationGroup) Add(child ChildRecord) {
	g[child.ParentID] = append(g[child.ParentID], child)
}

// RootIDs returns the ids of roots in order.
func RootIDs(roots []RootRecord) []int64 {
	ids := make([]int64, len(roots))
	for i, root := range roots {
		ids[i] = root.ID
	}
	return ids
}
