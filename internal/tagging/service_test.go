package tagging

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/store"
)

// newTestService wires a service over a real SQLite store with the
// standard test taxonomy: species (required, 1..3), origin (0..1),
// extras (0..unbounded).
func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	_, err = s.SeedGroups(ctx, []*models.TagGroup{
		{ID: "species", Description: "What is depicted", Required: true, MinCount: 1, MaxCount: intPtr(3), Position: 0},
		{ID: "origin", Description: "Where it came from", MinCount: 0, MaxCount: intPtr(1), Position: 1},
		{ID: "extras", Description: "Anything else", MinCount: 0, Position: 2},
	})
	require.NoError(t, err)

	return NewService(s), s
}

func mustContent(t *testing.T, s store.Store, url string) string {
	t.Helper()
	c := &models.Content{URL: url}
	require.NoError(t, s.CreateContent(context.Background(), c))
	return c.ID
}

func mustTag(t *testing.T, s store.Store, groupID, label string) string {
	t.Helper()
	tag, _, err := s.EnsureTag(context.Background(), groupID, label)
	require.NoError(t, err)
	return tag.ID
}

func TestAssign_AppliesAndBumpsUsage(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	result, err := svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)
	assert.Equal(t, []string{human}, result.Applied)

	tags, err := s.GetTags(ctx, []string{human})
	require.NoError(t, err)
	assert.Equal(t, 1, tags[0].UsageCount)
}

func TestAssign_Idempotent(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	_, err := svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)

	// Re-assigning succeeds, applies nothing, and usage stays at 1
	result, err := svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)

	tags, err := s.GetTags(ctx, []string{human})
	require.NoError(t, err)
	assert.Equal(t, 1, tags[0].UsageCount)
}

func TestAssign_ReassertAtMaxIsNoop(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	earth := mustTag(t, s, "origin", "earth")

	// Fill origin to its max of 1
	_, err := svc.Assign(ctx, contentID, []string{earth})
	require.NoError(t, err)

	// Re-asserting the held tag must not count against the max
	result, err := svc.Assign(ctx, contentID, []string{earth})
	require.NoError(t, err)
	assert.Empty(t, result.Applied)

	// A genuinely new tag in the full group is still rejected
	mars := mustTag(t, s, "origin", "mars")
	_, err = svc.Assign(ctx, contentID, []string{mars})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)

	// Mixing a held tag with a new one past the max is rejected too
	_, err = svc.Assign(ctx, contentID, []string{earth, mars})
	require.ErrorAs(t, err, &violation)

	tags, err := s.GetTags(ctx, []string{earth})
	require.NoError(t, err)
	assert.Equal(t, 1, tags[0].UsageCount)
}

func TestAssign_UnknownTagShortCircuits(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	_, err := svc.Assign(ctx, contentID, []string{human, "species:ghost", "origin:nowhere"})

	var unknown *UnknownTagError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"origin:nowhere", "species:ghost"}, unknown.TagIDs)

	// Nothing was written, not even the valid tag
	assigned, err := s.ContentTags(ctx, contentID)
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

func TestAssign_MaxViolationIsAllOrNothing(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")

	ids := []string{
		mustTag(t, s, "species", "human"),
		mustTag(t, s, "species", "alien"),
		mustTag(t, s, "species", "robot"),
		mustTag(t, s, "species", "elf"),
	}

	// Four tags against max 3: rejected as a whole
	_, err := svc.Assign(ctx, contentID, ids)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)

	assigned, err := s.ContentTags(ctx, contentID)
	require.NoError(t, err)
	assert.Empty(t, assigned)

	// Usage counts untouched by the failed attempt
	tags, err := s.GetTags(ctx, ids)
	require.NoError(t, err)
	for _, tag := range tags {
		assert.Equal(t, 0, tag.UsageCount)
	}
}

func TestAssign_AggregatesViolationsAcrossGroups(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")

	ids := []string{
		mustTag(t, s, "species", "human"),
		mustTag(t, s, "species", "alien"),
		mustTag(t, s, "species", "robot"),
		mustTag(t, s, "species", "elf"),
		mustTag(t, s, "origin", "earth"),
		mustTag(t, s, "origin", "mars"),
	}

	_, err := svc.Assign(ctx, contentID, ids)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Violations, 2)
	assert.Equal(t, "species", violation.Violations[0].GroupID)
	assert.Equal(t, "origin", violation.Violations[1].GroupID)
}

func TestAssign_DuplicateInputCountedOnce(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	earth := mustTag(t, s, "origin", "earth")

	// The same id twice must not trip the max_count=1 bound
	result, err := svc.Assign(ctx, contentID, []string{earth, earth})
	require.NoError(t, err)
	assert.Equal(t, []string{earth}, result.Applied)
}

func TestAssign_ContentNotFound(t *testing.T) {
	svc, s := newTestService(t)
	human := mustTag(t, s, "species", "human")

	_, err := svc.Assign(context.Background(), "missing", []string{human})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnassign_SymmetricWithAssign(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	_, err := svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)

	result, err := svc.Unassign(ctx, contentID, []string{human})
	require.NoError(t, err)
	assert.Equal(t, []string{human}, result.Removed)

	// Assign after unassign restores the original state
	_, err = svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)

	tags, err := s.GetTags(ctx, []string{human})
	require.NoError(t, err)
	assert.Equal(t, 1, tags[0].UsageCount)
}

func TestUnassign_AbsentPairIsNoop(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	result, err := svc.Unassign(ctx, contentID, []string{human})
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
}

func TestUnassign_NotBlockedByMinimums(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	_, err := svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)
	require.NoError(t, s.SetContentStatus(ctx, contentID, models.ContentStatusComplete))

	// Removal below the required minimum still succeeds; validation
	// reports the gap afterwards.
	_, err = svc.Unassign(ctx, contentID, []string{human})
	require.NoError(t, err)

	report, err := svc.Check(ctx, contentID)
	require.NoError(t, err)
	assert.False(t, report.Valid)
}

func TestValidate_DeltaDoesNotWrite(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	require.NoError(t, svc.Validate(ctx, contentID, []string{human}, ModeDelta))

	assigned, err := s.ContentTags(ctx, contentID)
	require.NoError(t, err)
	assert.Empty(t, assigned)
}

func TestValidate_StrictChecksMinimums(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	earth := mustTag(t, s, "origin", "earth")

	// Delta mode tolerates the missing species group
	require.NoError(t, svc.Validate(ctx, contentID, []string{earth}, ModeDelta))

	// Strict mode treats the set as final and flags it
	err := svc.Validate(ctx, contentID, []string{earth}, ModeStrict)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "species", violation.Violations[0].GroupID)
	assert.Equal(t, "min", violation.Violations[0].Bound)
}

func TestValidate_StrictUnionsWithExisting(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")
	earth := mustTag(t, s, "origin", "earth")

	_, err := svc.Assign(ctx, contentID, []string{human, earth})
	require.NoError(t, err)

	// Already-assigned tags in the incoming set count once, so the
	// single-slot origin group stays satisfied.
	require.NoError(t, svc.Validate(ctx, contentID, []string{earth}, ModeStrict))
}

func TestValidate_DeltaSkipsHeldTags(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	earth := mustTag(t, s, "origin", "earth")

	_, err := svc.Assign(ctx, contentID, []string{earth})
	require.NoError(t, err)

	// Re-sending the held tag against the full single-slot group is a
	// no-op delta, so it validates.
	require.NoError(t, svc.Validate(ctx, contentID, []string{earth}, ModeDelta))

	// A new tag would actually exceed the max and is flagged
	mars := mustTag(t, s, "origin", "mars")
	err = svc.Validate(ctx, contentID, []string{mars}, ModeDelta)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
}

func TestCheck_ReportShape(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")

	report, err := svc.Check(ctx, contentID)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 0, report.CompletionPct)
	assert.Equal(t, 1, report.Summary.MissingRequired)
	assert.Equal(t, []string{"species"}, report.MissingRequiredGroups())
	require.Len(t, report.Groups, 3)

	human := mustTag(t, s, "species", "human")
	_, err = svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)

	report, err = svc.Check(ctx, contentID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 100, report.CompletionPct)
	assert.Empty(t, report.MissingRequiredGroups())
}

func TestComplete_GateRefusesIncomplete(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")

	_, err := svc.Complete(ctx, contentID)
	var incomplete *IncompleteContentError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, contentID, incomplete.ContentID)
	assert.Contains(t, err.Error(), "species")

	// Status unchanged
	c, err := s.GetContent(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusDraft, c.Status)
}

func TestComplete_TransitionsWhenValid(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")
	human := mustTag(t, s, "species", "human")

	_, err := svc.Assign(ctx, contentID, []string{human})
	require.NoError(t, err)

	report, err := svc.Complete(ctx, contentID)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	c, err := s.GetContent(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusComplete, c.Status)
}

func TestAssign_ConcurrentRespectsBounds(t *testing.T) {
	svc, s := newTestService(t)
	ctx := context.Background()
	contentID := mustContent(t, s, "https://example.com/1")

	ids := []string{
		mustTag(t, s, "species", "human"),
		mustTag(t, s, "species", "alien"),
		mustTag(t, s, "species", "robot"),
		mustTag(t, s, "species", "elf"),
		mustTag(t, s, "species", "dwarf"),
	}

	// Five racing single-tag assigns against max 3: at most three may
	// land regardless of interleaving.
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(tagID string) {
			defer wg.Done()
			_, _ = svc.Assign(ctx, contentID, []string{tagID})
		}(id)
	}
	wg.Wait()

	assigned, err := s.ContentTags(ctx, contentID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(assigned), 3)
	assert.Greater(t, len(assigned), 0)
}
