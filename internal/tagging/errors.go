package tagging

import (
	"fmt"
	"strings"
)

// UnknownTagError reports tag ids that do not exist in the taxonomy.
// The whole operation is aborted before any counts are evaluated.
type UnknownTagError struct {
	TagIDs []string
}

func (e *UnknownTagError) Error() string {
	return "unknown tag(s): " + strings.Join(e.TagIDs, ", ")
}

// Violation is a single group bound failure.
type Violation struct {
	GroupID string `json:"group_id"`
	Bound   string `json:"bound"` // "min" or "max"
	Limit   int    `json:"limit"`
	Count   int    `json:"count"`
}

func (v Violation) message() string {
	if v.Bound == "min" {
		return fmt.Sprintf("group %q requires at least %d tags", v.GroupID, v.Limit)
	}
	return fmt.Sprintf("group %q allows at most %d tags", v.GroupID, v.Limit)
}

// ConstraintViolationError aggregates every violated group bound in one
// error, in group position order, so a caller can display all problems
// at once.
type ConstraintViolationError struct {
	Violations []Violation
}

func (e *ConstraintViolationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.message()
	}
	return strings.Join(msgs, "; ")
}

// IncompleteContentError refuses a publish transition while the
// completeness check fails. The report carries per-group detail.
type IncompleteContentError struct {
	ContentID string
	Report    *Report
}

func (e *IncompleteContentError) Error() string {
	var missing []string
	for _, g := range e.Report.Groups {
		if g.Status == GroupStatusMissing {
			missing = append(missing, g.GroupID)
		}
	}
	if len(missing) > 0 {
		return fmt.Sprintf("content %s is incomplete: missing groups: %s",
			e.ContentID, strings.Join(missing, ", "))
	}
	return fmt.Sprintf("content %s is incomplete", e.ContentID)
}
