package aggregate

import "strings"

// Criteria filters and pages root records. The zero value matches every root
// and uses the default page size.
type Criteria struct {
	// Status is matched exactly when non-empty.
	Status string
	// NameContains is matched as a literal substring when non-blank.
	NameContains string
	Offset       int
	// Limit of zero means "not requested".
	Limit int
}

// HasStatus reports whether a status filter is present.
func (c Criteria) HasStatus() bool {
	return c.Status != ""
}

// HasName reports whether a name filter is present.
func (c Criteria) HasName() bool {
	return strings.TrimSpace(c.NameContains) != ""
}

// Paginated reports whether the caller asked for a page explicitly.
func (c Criteria) Paginated() bool {
	return c.Offset > 0 || c.Limit > 0
}

// Validate rejects malformed criteria for root.
func (c Criteria) Validate(root Root) error {
	if c.Offset < 0 {
		return &ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if c.Limit < 0 {
		return &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if c.HasStatus() && !root.ValidStatus(c.Status) {
		return &ValidationError{Field: "status", Message: "unknown status " + c.Status}
	}
	return nil
}
