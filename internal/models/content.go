package models

import "time"

// ContentStatus represents the lifecycle state of a content item.
type ContentStatus string

const (
	ContentStatusDraft    ContentStatus = "draft"
	ContentStatusComplete ContentStatus = "complete"
	ContentStatusDeleted  ContentStatus = "deleted"
)

// ContentType represents the kind of media a content item points at.
type ContentType string

const (
	ContentTypeImage ContentType = "image"
	ContentTypeVideo ContentType = "video"
)

// Content represents a tracked media item.
type Content struct {
	ID        string
	URL       string
	Site      string
	Creator   string
	Type      ContentType
	Status    ContentStatus
	CreatedAt time.Time
}

// TaggedContent is a content row together with its assigned tags in
// group display order.
type TaggedContent struct {
	Content
	Tags []Tag
}
