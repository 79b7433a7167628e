package tagging

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/mediastash/tagger/internal/models"
)

const defaultSearchLimit = 10

// Search returns ranked candidate tags within one group for
// autocomplete. Without a query it returns the most used tags. With a
// query a tag matches on a case-insensitive label prefix or when the
// edit distance of its normalized label is within the query-length
// threshold, so close misspellings still surface. Ranking: prefix
// matches first, then ascending distance, then usage, then recency.
func (s *Service) Search(ctx context.Context, groupID, query string, limit int) ([]*models.Tag, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return s.store.TopGroupTags(ctx, groupID, limit)
	}

	tags, err := s.store.ListGroupTags(ctx, groupID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	qNorm := normalizeLabel(query)
	threshold := distanceThreshold(q)

	type match struct {
		tag      *models.Tag
		prefix   bool
		distance int
	}

	var matches []match
	for _, t := range tags {
		prefix := strings.HasPrefix(strings.ToLower(t.Label), q)
		distance := smetrics.WagnerFischer(normalizeLabel(t.Label), qNorm, 1, 1, 1)
		if !prefix && distance > threshold {
			continue
		}
		matches = append(matches, match{tag: t, prefix: prefix, distance: distance})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.tag.UsageCount != b.tag.UsageCount {
			return a.tag.UsageCount > b.tag.UsageCount
		}
		if !timeEqual(a.tag.LastUsed, b.tag.LastUsed) {
			return timeAfter(a.tag.LastUsed, b.tag.LastUsed)
		}
		return a.tag.Label < b.tag.Label
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]*models.Tag, len(matches))
	for i, m := range matches {
		out[i] = m.tag
	}
	return out, nil
}

// normalizeLabel lowercases and maps whitespace runs to a single
// separator, matching the slug convention used for tag ids.
func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// distanceThreshold scales the allowed edit distance with query
// length: at least 2, otherwise half the query length.
func distanceThreshold(q string) int {
	t := utf8.RuneCountInString(q) / 2
	if t < 2 {
		t = 2
	}
	return t
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// timeAfter orders non-nil timestamps descending with nils last.
func timeAfter(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
