package models

import "time"

// PreviewStatus represents the fetch state of a derived preview.
type PreviewStatus string

const (
	PreviewStatusPending PreviewStatus = "pending"
	PreviewStatusReady   PreviewStatus = "ready"
	PreviewStatusFailed  PreviewStatus = "failed"
)

// PreviewType classifies what a preview URL points at.
type PreviewType string

const (
	PreviewTypeImage   PreviewType = "image"
	PreviewTypeVideo   PreviewType = "video"
	PreviewTypePage    PreviewType = "page"
	PreviewTypeUnknown PreviewType = "unknown"
)

// Preview holds thumbnail/title metadata derived from a content item's
// source URL. Best effort: a failed fetch is recorded, never fatal.
type Preview struct {
	ContentID     string
	Type          PreviewType
	URL           string
	NormalizedURL string
	Title         string
	Description   string
	Status        PreviewStatus
	FetchedAt     *time.Time
}
