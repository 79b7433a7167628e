package tagging

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/store"
)

// ValidateMode selects how Validate interprets the supplied tag set.
type ValidateMode string

const (
	// ModeDelta treats the tags as an incremental addition and checks
	// only maximums on affected groups.
	ModeDelta ValidateMode = "delta"
	// ModeStrict treats the tags as the intended total set and checks
	// both bounds on every group.
	ModeStrict ValidateMode = "strict"
)

// lockStripes is the size of the per-content mutex arena. Assignments
// to the same content item serialize; different items proceed in
// parallel.
const lockStripes = 64

// Service orchestrates constraint evaluation, transactional tag
// assignment, the completeness gate, and tag search over a Store.
type Service struct {
	store store.Store
	locks [lockStripes]sync.Mutex
}

// NewService creates a tagging service backed by the given store.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// contentLock returns the stripe mutex for a content id. Two assign
// calls racing on the same item would otherwise both read the
// pre-mutation count, both pass the max check, and jointly exceed the
// bound.
func (s *Service) contentLock(contentID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(contentID))
	return &s.locks[h.Sum32()%lockStripes]
}

// AssignResult reports the tags actually applied by an assign call.
type AssignResult struct {
	ContentID string   `json:"content_id"`
	Applied   []string `json:"applied"`
}

// RemoveResult reports the tags actually removed by an unassign call.
type RemoveResult struct {
	ContentID string   `json:"content_id"`
	Removed   []string `json:"removed"`
}

// Report is the completeness gate's structured result. Valid is false
// whenever any group is outside its bounds, below min or over max;
// CompletionPct and Summary.MissingRequired track required minimums
// only, so 100% with Valid=false is possible.
type Report struct {
	ContentID     string        `json:"content_id"`
	Valid         bool          `json:"valid"`
	CompletionPct int           `json:"completion_pct"`
	Summary       ReportSummary `json:"summary"`
	Groups        []GroupStatus `json:"groups"`
}

// ReportSummary counts the failing groups by kind.
type ReportSummary struct {
	MissingRequired int `json:"missing_required"`
	OverLimit       int `json:"over_limit"`
}

// MissingRequiredGroups returns ids of required groups still below
// their minimum, in position order.
func (r *Report) MissingRequiredGroups() []string {
	var ids []string
	for _, g := range r.Groups {
		if g.Required && g.Status == GroupStatusMissing {
			ids = append(ids, g.GroupID)
		}
	}
	return ids
}

// Assign applies tags to a content item after delta validation. The
// whole call is all-or-nothing: unknown tags or a constraint violation
// abort before any write, and the write itself runs in one store
// transaction.
func (s *Service) Assign(ctx context.Context, contentID string, tagIDs []string) (*AssignResult, error) {
	tagIDs = dedupe(tagIDs)
	if len(tagIDs) == 0 {
		return &AssignResult{ContentID: contentID}, nil
	}

	mu := s.contentLock(contentID)
	mu.Lock()
	defer mu.Unlock()

	tags, err := s.resolveTags(ctx, contentID, tagIDs)
	if err != nil {
		return nil, err
	}

	// Pairs the item already holds are no-ops on write and must not
	// count against the max either, or re-asserting a held tag in a
	// full group would be rejected.
	existing, err := s.store.ContentTags(ctx, contentID)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(existing))
	for _, t := range existing {
		held[t.ID] = true
	}

	incoming := make(map[string]int)
	for _, t := range tags {
		if held[t.ID] {
			continue
		}
		incoming[t.GroupID]++
	}

	usage, err := s.store.GroupUsage(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if err := CheckDelta(usage, incoming); err != nil {
		return nil, err
	}

	applied, err := s.store.ApplyAssignment(ctx, contentID, tagIDs, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &AssignResult{ContentID: contentID, Applied: applied}, nil
}

// Unassign removes tags from a content item. Absent pairs are no-ops;
// no constraint re-validation happens on removal.
func (s *Service) Unassign(ctx context.Context, contentID string, tagIDs []string) (*RemoveResult, error) {
	tagIDs = dedupe(tagIDs)
	if len(tagIDs) == 0 {
		return &RemoveResult{ContentID: contentID}, nil
	}

	mu := s.contentLock(contentID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.resolveTags(ctx, contentID, tagIDs); err != nil {
		return nil, err
	}

	removed, err := s.store.RemoveAssignment(ctx, contentID, tagIDs)
	if err != nil {
		return nil, err
	}
	return &RemoveResult{ContentID: contentID, Removed: removed}, nil
}

// Validate checks a candidate tag set against group bounds without
// writing anything. ModeDelta checks the addition; ModeStrict checks
// the union of existing and incoming tags as the intended final set.
func (s *Service) Validate(ctx context.Context, contentID string, tagIDs []string, mode ValidateMode) error {
	tagIDs = dedupe(tagIDs)

	tags, err := s.resolveTags(ctx, contentID, tagIDs)
	if err != nil {
		return err
	}

	usage, err := s.store.GroupUsage(ctx, contentID)
	if err != nil {
		return err
	}

	switch mode {
	case ModeStrict:
		existing, err := s.store.ContentTags(ctx, contentID)
		if err != nil {
			return err
		}
		final := make(map[string]int)
		seen := make(map[string]bool)
		for _, t := range existing {
			seen[t.ID] = true
			final[t.GroupID]++
		}
		for _, t := range tags {
			if !seen[t.ID] {
				final[t.GroupID]++
			}
		}
		return CheckStrict(usage, final)
	default:
		existing, err := s.store.ContentTags(ctx, contentID)
		if err != nil {
			return err
		}
		held := make(map[string]bool, len(existing))
		for _, t := range existing {
			held[t.ID] = true
		}
		// Held pairs are write no-ops, so the delta counts only
		// genuinely new ones, matching what Assign would do.
		incoming := make(map[string]int)
		for _, t := range tags {
			if held[t.ID] {
				continue
			}
			incoming[t.GroupID]++
		}
		return CheckDelta(usage, incoming)
	}
}

// Check runs the completeness gate for a content item: every group is
// classified against its bounds and the item is valid when no group
// with a minimum is unsatisfied and none exceeds its maximum.
func (s *Service) Check(ctx context.Context, contentID string) (*Report, error) {
	if err := s.requireContent(ctx, contentID); err != nil {
		return nil, err
	}

	usage, err := s.store.GroupUsage(ctx, contentID)
	if err != nil {
		return nil, err
	}

	groups := EvaluateFull(usage)
	report := &Report{ContentID: contentID, Groups: groups}

	requiredTotal := 0
	requiredOK := 0
	missing := 0
	for _, g := range groups {
		if g.Required {
			requiredTotal++
			if g.Status == GroupStatusOK {
				requiredOK++
			}
		}
		switch g.Status {
		case GroupStatusMissing:
			missing++
		case GroupStatusOverLimit:
			report.Summary.OverLimit++
		}
		if g.Required && g.Status == GroupStatusMissing {
			report.Summary.MissingRequired++
		}
	}

	report.Valid = missing == 0 && report.Summary.OverLimit == 0
	if requiredTotal > 0 {
		report.CompletionPct = requiredOK * 100 / requiredTotal
	} else {
		report.CompletionPct = 100
	}
	return report, nil
}

// Complete transitions a content item to its terminal complete status.
// The transition is refused, not downgraded, when the completeness
// check fails; the returned error carries the full report.
func (s *Service) Complete(ctx context.Context, contentID string) (*Report, error) {
	report, err := s.Check(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return report, &IncompleteContentError{ContentID: contentID, Report: report}
	}
	if err := s.store.SetContentStatus(ctx, contentID, models.ContentStatusComplete); err != nil {
		return nil, err
	}
	return report, nil
}

// EnsureTag creates a tag in a group from its label if it does not
// exist yet, returning the stored row either way.
func (s *Service) EnsureTag(ctx context.Context, groupID, label string) (*models.Tag, bool, error) {
	return s.store.EnsureTag(ctx, groupID, label)
}

// resolveTags maps tag ids to rows, failing the whole call with an
// UnknownTagError naming every missing id before any count is
// evaluated. It also verifies the content item exists.
func (s *Service) resolveTags(ctx context.Context, contentID string, tagIDs []string) ([]*models.Tag, error) {
	if err := s.requireContent(ctx, contentID); err != nil {
		return nil, err
	}

	tags, err := s.store.GetTags(ctx, tagIDs)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(tagIDs) {
		found := make(map[string]bool, len(tags))
		for _, t := range tags {
			found[t.ID] = true
		}
		var missing []string
		for _, id := range tagIDs {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		return nil, &UnknownTagError{TagIDs: missing}
	}
	return tags, nil
}

func (s *Service) requireContent(ctx context.Context, contentID string) error {
	ok, err := s.store.ContentExists(ctx, contentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("content %s: %w", contentID, store.ErrNotFound)
	}
	return nil
}

// dedupe removes duplicate ids preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
