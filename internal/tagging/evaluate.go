// Package tagging implements the tag-group constraint engine: the
// rules that decide which tag sets are valid per group, the
// transactional assignment operations that enforce them, the
// completeness check gating publication, and ranked tag search.
package tagging

import "github.com/mediastash/tagger/internal/models"

// GroupStatusValue classifies a group's tag count against its bounds.
type GroupStatusValue string

const (
	GroupStatusOK        GroupStatusValue = "ok"
	GroupStatusMissing   GroupStatusValue = "missing"
	GroupStatusOverLimit GroupStatusValue = "over_limit"
)

// GroupStatus is the evaluated state of one tag group for a content item.
type GroupStatus struct {
	GroupID  string           `json:"group_id"`
	Required bool             `json:"required"`
	MinCount int              `json:"min"`
	MaxCount *int             `json:"max"`
	Count    int              `json:"count"`
	Status   GroupStatusValue `json:"status"`
}

// EvaluateFull classifies every group for a content item. Input order
// is preserved; the store supplies groups in position order.
func EvaluateFull(usage []models.GroupUsage) []GroupStatus {
	statuses := make([]GroupStatus, len(usage))
	for i, u := range usage {
		status := GroupStatusOK
		switch {
		case u.Count < u.MinCount:
			status = GroupStatusMissing
		case u.MaxCount != nil && u.Count > *u.MaxCount:
			status = GroupStatusOverLimit
		}
		statuses[i] = GroupStatus{
			GroupID:  u.GroupID,
			Required: u.Required,
			MinCount: u.MinCount,
			MaxCount: u.MaxCount,
			Count:    u.Count,
			Status:   status,
		}
	}
	return statuses
}

// CheckDelta validates the effect of ADDING tags: for every group that
// is touched by the delta or already holds tags, current + incoming
// must not exceed the group max. Minimums are deliberately not checked
// here; drafts may be incomplete and the completeness check owns that
// rule. Groups untouched and currently empty are skipped, so a group
// already over its max from legacy data is only re-flagged when the
// delta touches it.
func CheckDelta(usage []models.GroupUsage, incoming map[string]int) error {
	var violations []Violation
	for _, u := range usage {
		inc := incoming[u.GroupID]
		if inc == 0 && u.Count == 0 {
			continue
		}
		if u.MaxCount != nil && u.Count+inc > *u.MaxCount {
			violations = append(violations, Violation{
				GroupID: u.GroupID,
				Bound:   "max",
				Limit:   *u.MaxCount,
				Count:   u.Count + inc,
			})
		}
	}
	if len(violations) > 0 {
		return &ConstraintViolationError{Violations: violations}
	}
	return nil
}

// CheckStrict validates an intended FINAL per-group tag count against
// both bounds of every group. Callers supply the count of the union of
// existing and incoming tags per group.
func CheckStrict(usage []models.GroupUsage, final map[string]int) error {
	var violations []Violation
	for _, u := range usage {
		count := final[u.GroupID]
		if count < u.MinCount {
			violations = append(violations, Violation{
				GroupID: u.GroupID,
				Bound:   "min",
				Limit:   u.MinCount,
				Count:   count,
			})
		}
		if u.MaxCount != nil && count > *u.MaxCount {
			violations = append(violations, Violation{
				GroupID: u.GroupID,
				Bound:   "max",
				Limit:   *u.MaxCount,
				Count:   count,
			})
		}
	}
	if len(violations) > 0 {
		return &ConstraintViolationError{Violations: violations}
	}
	return nil
}
