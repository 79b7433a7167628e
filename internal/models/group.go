package models

import "time"

// TagGroup is a taxonomy category with cardinality bounds on how many
// of its member tags a content item may hold.
type TagGroup struct {
	ID          string
	Description string
	Required    bool
	MinCount    int
	MaxCount    *int // nil = unbounded
	Position    int
	CreatedAt   time.Time
}

// Bounded reports whether the group has an upper bound.
func (g *TagGroup) Bounded() bool {
	return g.MaxCount != nil
}

// GroupUsage is a per-group view of a content item's tag set: the
// group's bounds plus the number of the group's tags currently
// assigned to the item.
type GroupUsage struct {
	GroupID  string
	Required bool
	MinCount int
	MaxCount *int
	Position int
	Count    int
}
