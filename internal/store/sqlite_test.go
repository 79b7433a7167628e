package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastash/tagger/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

// seedTestGroups installs a small taxonomy: species (required, 1..3),
// origin (0..1), extras (0..unbounded).
func seedTestGroups(t *testing.T, s *SQLiteStore) {
	t.Helper()
	_, err := s.SeedGroups(context.Background(), []*models.TagGroup{
		{ID: "species", Description: "What is depicted", Required: true, MinCount: 1, MaxCount: intPtr(3), Position: 0},
		{ID: "origin", Description: "Where it came from", MinCount: 0, MaxCount: intPtr(1), Position: 1},
		{ID: "extras", Description: "Anything else", MinCount: 0, Position: 2},
	})
	require.NoError(t, err)
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

// --- Tag groups ---

func TestSeedGroups_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	groups := []*models.TagGroup{
		{ID: "species", Required: true, MinCount: 1, MaxCount: intPtr(3), Position: 0},
		{ID: "origin", MinCount: 0, MaxCount: intPtr(1), Position: 1},
	}

	inserted, err := s.SeedGroups(ctx, groups)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	// Re-seeding with changed bounds must not touch existing rows
	groups[0].MaxCount = intPtr(99)
	inserted, err = s.SeedGroups(ctx, groups)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	g, err := s.GetGroup(ctx, "species")
	require.NoError(t, err)
	require.NotNil(t, g.MaxCount)
	assert.Equal(t, 3, *g.MaxCount)
	assert.True(t, g.Required)
}

func TestReplaceGroups_OverwritesBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTestGroups(t, s)

	err := s.ReplaceGroups(ctx, []*models.TagGroup{
		{ID: "species", Required: true, MinCount: 2, MaxCount: intPtr(5), Position: 0},
	})
	require.NoError(t, err)

	g, err := s.GetGroup(ctx, "species")
	require.NoError(t, err)
	assert.Equal(t, 2, g.MinCount)
	assert.Equal(t, 5, *g.MaxCount)
}

func TestListGroups_PositionOrder(t *testing.T) {
	s := newTestStore(t)
	seedTestGroups(t, s)

	groups, err := s.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "species", groups[0].ID)
	assert.Equal(t, "origin", groups[1].ID)
	assert.Equal(t, "extras", groups[2].ID)

	// Unbounded max stays nil
	assert.Nil(t, groups[2].MaxCount)
}

func TestGetGroup_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetGroup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Tags ---

func TestEnsureTag_DerivesIDFromLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTestGroups(t, s)

	tag, created, err := s.EnsureTag(ctx, "species", "Deep Sea  Diver!")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "species:deep_sea_diver", tag.ID)
	assert.Equal(t, "Deep Sea  Diver!", tag.Label)
	assert.Equal(t, 0, tag.UsageCount)

	// Second call returns the same row without creating
	again, created, err := s.EnsureTag(ctx, "species", "Deep Sea  Diver!")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, tag.ID, again.ID)
}

func TestEnsureTag_UnknownGroup(t *testing.T) {
	s := newTestStore(t)
	seedTestGroups(t, s)

	_, _, err := s.EnsureTag(context.Background(), "ghost", "anything")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTags_UnknownIDsAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTestGroups(t, s)

	_, _, err := s.EnsureTag(ctx, "species", "human")
	require.NoError(t, err)

	tags, err := s.GetTags(ctx, []string{"species:human", "species:ghost"})
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "species:human", tags[0].ID)
}

// --- Content ---

func TestContentCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Content{URL: "https://example.com/a.jpg", Site: "example", Creator: "anna"}
	err := s.CreateContent(ctx, c)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.ContentStatusDraft, c.Status)
	assert.Equal(t, models.ContentTypeImage, c.Type)

	got, err := s.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.URL, got.URL)
	assert.Equal(t, "anna", got.Creator)

	exists, err := s.ContentExists(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.SetContentStatus(ctx, c.ID, models.ContentStatusDeleted)
	require.NoError(t, err)

	// Deleted items no longer count as existing
	exists, err = s.ContentExists(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateContent_DuplicateURL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateContent(ctx, &models.Content{URL: "https://example.com/x"})
	require.NoError(t, err)

	err = s.CreateContent(ctx, &models.Content{URL: "https://example.com/x"})
	assert.ErrorIs(t, err, ErrDuplicateURL)
}

func TestNextIncomplete_OldestDraftFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Content{URL: "https://example.com/1"}
	require.NoError(t, s.CreateContent(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := &models.Content{URL: "https://example.com/2"}
	require.NoError(t, s.CreateContent(ctx, second))

	next, err := s.NextIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, next.ID)

	// Completing the oldest advances the queue
	require.NoError(t, s.SetContentStatus(ctx, first.ID, models.ContentStatusComplete))
	next, err = s.NextIncomplete(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, next.ID)
}

func TestNextIncomplete_Empty(t *testing.T) {
	s := newTestStore(t)

	_, err := s.NextIncomplete(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExistingURLs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateContent(ctx, &models.Content{URL: "https://a.test/1"}))
	require.NoError(t, s.CreateContent(ctx, &models.Content{URL: "https://a.test/2"}))

	existing, err := s.ExistingURLs(ctx, []string{"https://a.test/1", "https://a.test/3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/1"}, existing)
}

// --- Assignments ---

func seedContentWithTags(t *testing.T, s *SQLiteStore) (contentID string, tagIDs []string) {
	t.Helper()
	ctx := context.Background()
	seedTestGroups(t, s)

	c := &models.Content{URL: "https://example.com/item"}
	require.NoError(t, s.CreateContent(ctx, c))

	for _, label := range []string{"human", "alien"} {
		tag, _, err := s.EnsureTag(ctx, "species", label)
		require.NoError(t, err)
		tagIDs = append(tagIDs, tag.ID)
	}
	return c.ID, tagIDs
}

func TestApplyAssignment_IdempotentUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	contentID, tagIDs := seedContentWithTags(t, s)

	applied, err := s.ApplyAssignment(ctx, contentID, tagIDs[:1], time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, tagIDs[:1], applied)

	// Re-asserting the same pair must not bump usage again
	applied, err = s.ApplyAssignment(ctx, contentID, tagIDs[:1], time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, applied)

	tags, err := s.GetTags(ctx, tagIDs[:1])
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, 1, tags[0].UsageCount)
	assert.NotNil(t, tags[0].LastUsed)
}

func TestRemoveAssignment_FloorsUsageAtZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	contentID, tagIDs := seedContentWithTags(t, s)

	_, err := s.ApplyAssignment(ctx, contentID, tagIDs[:1], time.Now().UTC())
	require.NoError(t, err)

	removed, err := s.RemoveAssignment(ctx, contentID, tagIDs[:1])
	require.NoError(t, err)
	assert.Equal(t, tagIDs[:1], removed)

	// Removing an absent pair is a no-op and must not drive usage negative
	removed, err = s.RemoveAssignment(ctx, contentID, tagIDs[:1])
	require.NoError(t, err)
	assert.Empty(t, removed)

	tags, err := s.GetTags(ctx, tagIDs[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, tags[0].UsageCount)
}

func TestGroupUsage_CountsPerGroup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	contentID, tagIDs := seedContentWithTags(t, s)

	_, err := s.ApplyAssignment(ctx, contentID, tagIDs, time.Now().UTC())
	require.NoError(t, err)

	usage, err := s.GroupUsage(ctx, contentID)
	require.NoError(t, err)
	require.Len(t, usage, 3)

	assert.Equal(t, "species", usage[0].GroupID)
	assert.Equal(t, 2, usage[0].Count)
	assert.True(t, usage[0].Required)

	// Untouched groups still appear, with zero counts
	assert.Equal(t, "origin", usage[1].GroupID)
	assert.Equal(t, 0, usage[1].Count)
	assert.Equal(t, "extras", usage[2].GroupID)
	assert.Equal(t, 0, usage[2].Count)
}

func TestContentTags_GroupPositionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTestGroups(t, s)

	c := &models.Content{URL: "https://example.com/ordered"}
	require.NoError(t, s.CreateContent(ctx, c))

	extra, _, err := s.EnsureTag(ctx, "extras", "sparkly")
	require.NoError(t, err)
	species, _, err := s.EnsureTag(ctx, "species", "human")
	require.NoError(t, err)

	// Assign in reverse position order
	_, err = s.ApplyAssignment(ctx, c.ID, []string{extra.ID, species.ID}, time.Now().UTC())
	require.NoError(t, err)

	tags, err := s.ContentTags(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, species.ID, tags[0].ID)
	assert.Equal(t, extra.ID, tags[1].ID)
}

func TestTopGroupTags_UsageOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTestGroups(t, s)

	popular, _, err := s.EnsureTag(ctx, "species", "human")
	require.NoError(t, err)
	rare, _, err := s.EnsureTag(ctx, "species", "alien")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c := &models.Content{URL: "https://example.com/p" + string(rune('a'+i))}
		require.NoError(t, s.CreateContent(ctx, c))
		_, err = s.ApplyAssignment(ctx, c.ID, []string{popular.ID}, time.Now().UTC())
		require.NoError(t, err)
	}

	top, err := s.TopGroupTags(ctx, "species", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, popular.ID, top[0].ID)
	assert.Equal(t, rare.ID, top[1].ID)
}

// --- Previews ---

func TestPreviewUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &models.Content{URL: "https://example.com/page"}
	require.NoError(t, s.CreateContent(ctx, c))

	now := time.Now().UTC()
	p := &models.Preview{
		ContentID: c.ID,
		Type:      models.PreviewTypeImage,
		URL:       "https://cdn.example.com/a.jpg?sig=1",
		Status:    models.PreviewStatusReady,
		FetchedAt: &now,
	}
	require.NoError(t, s.UpsertPreview(ctx, p))

	// Upsert replaces the previous row
	p.Status = models.PreviewStatusFailed
	require.NoError(t, s.UpsertPreview(ctx, p))

	got, err := s.GetPreview(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreviewStatusFailed, got.Status)
	assert.Equal(t, models.PreviewTypeImage, got.Type)
}

func TestGetPreview_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPreview(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Snapshot ---

func TestSnapshot_WritesFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateContent(ctx, &models.Content{URL: "https://example.com/snap"}))

	dest := filepath.Join(t.TempDir(), "backups", "latest.db")
	require.NoError(t, s.Snapshot(ctx, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Overwriting an existing snapshot must succeed
	require.NoError(t, s.Snapshot(ctx, dest))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "deep_sea_diving", slugify("Deep Sea  Diving!"))
	assert.Equal(t, "hello_world", slugify(" Hello-World "))
	assert.Equal(t, "caf", slugify("café")) // non-word runes stripped
}
