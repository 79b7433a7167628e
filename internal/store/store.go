package store

import (
	"context"
	"errors"
	"time"

	"github.com/mediastash/tagger/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateURL is returned when creating content whose source URL
// is already tracked.
var ErrDuplicateURL = errors.New("duplicate url")

// Store defines the persistence interface for tagger.
type Store interface {
	// Tag groups
	SeedGroups(ctx context.Context, groups []*models.TagGroup) (int, error)
	ReplaceGroups(ctx context.Context, groups []*models.TagGroup) error
	ListGroups(ctx context.Context) ([]*models.TagGroup, error)
	GetGroup(ctx context.Context, id string) (*models.TagGroup, error)

	// Tags
	CreateTag(ctx context.Context, tag *models.Tag) error
	EnsureTag(ctx context.Context, groupID, label string) (*models.Tag, bool, error)
	GetTags(ctx context.Context, ids []string) ([]*models.Tag, error)
	ListGroupTags(ctx context.Context, groupID string) ([]*models.Tag, error)
	TopGroupTags(ctx context.Context, groupID string, limit int) ([]*models.Tag, error)

	// Content
	CreateContent(ctx context.Context, c *models.Content) error
	GetContent(ctx context.Context, id string) (*models.Content, error)
	ListContent(ctx context.Context) ([]*models.TaggedContent, error)
	NextIncomplete(ctx context.Context) (*models.Content, error)
	SetContentStatus(ctx context.Context, id string, status models.ContentStatus) error
	ContentExists(ctx context.Context, id string) (bool, error)
	ExistingURLs(ctx context.Context, urls []string) ([]string, error)

	// Tag associations
	GroupUsage(ctx context.Context, contentID string) ([]models.GroupUsage, error)
	ContentTags(ctx context.Context, contentID string) ([]*models.Tag, error)
	ApplyAssignment(ctx context.Context, contentID string, tagIDs []string, now time.Time) ([]string, error)
	RemoveAssignment(ctx context.Context, contentID string, tagIDs []string) ([]string, error)

	// Previews
	UpsertPreview(ctx context.Context, p *models.Preview) error
	GetPreview(ctx context.Context, contentID string) (*models.Preview, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Snapshot(ctx context.Context, destPath string) error
	Close() error
}
