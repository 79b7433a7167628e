package models

import "time"

// Tag represents a label that can be applied to content items.
// Tag ids follow the "<group_id>:<slug>" convention and are unique
// across all groups.
type Tag struct {
	ID         string
	Label      string
	GroupID    string
	UsageCount int
	LastUsed   *time.Time
}
