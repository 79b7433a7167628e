package tagging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastash/tagger/internal/models"
)

func intPtr(v int) *int { return &v }

func testUsage() []models.GroupUsage {
	return []models.GroupUsage{
		{GroupID: "species", Required: true, MinCount: 1, MaxCount: intPtr(3), Position: 0},
		{GroupID: "origin", MinCount: 0, MaxCount: intPtr(1), Position: 1},
		{GroupID: "extras", MinCount: 0, Position: 2},
	}
}

func TestEvaluateFull_Statuses(t *testing.T) {
	usage := testUsage()
	usage[0].Count = 0 // below min
	usage[1].Count = 2 // above max
	usage[2].Count = 7 // unbounded, fine

	statuses := EvaluateFull(usage)
	require.Len(t, statuses, 3)
	assert.Equal(t, GroupStatusMissing, statuses[0].Status)
	assert.Equal(t, GroupStatusOverLimit, statuses[1].Status)
	assert.Equal(t, GroupStatusOK, statuses[2].Status)
}

func TestEvaluateFull_PreservesOrder(t *testing.T) {
	statuses := EvaluateFull(testUsage())
	assert.Equal(t, "species", statuses[0].GroupID)
	assert.Equal(t, "origin", statuses[1].GroupID)
	assert.Equal(t, "extras", statuses[2].GroupID)
}

func TestCheckDelta_WithinBounds(t *testing.T) {
	usage := testUsage()
	usage[0].Count = 1

	err := CheckDelta(usage, map[string]int{"species": 2})
	assert.NoError(t, err)
}

func TestCheckDelta_MaxExceeded(t *testing.T) {
	usage := testUsage()
	usage[0].Count = 2

	err := CheckDelta(usage, map[string]int{"species": 2})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Violations, 1)
	assert.Equal(t, "species", violation.Violations[0].GroupID)
	assert.Equal(t, "max", violation.Violations[0].Bound)
	assert.Equal(t, 3, violation.Violations[0].Limit)
	assert.Equal(t, 4, violation.Violations[0].Count)
}

func TestCheckDelta_IgnoresMinimums(t *testing.T) {
	// species is below min but the delta only touches origin; drafts
	// may stay incomplete.
	usage := testUsage()

	err := CheckDelta(usage, map[string]int{"origin": 1})
	assert.NoError(t, err)
}

func TestCheckDelta_SkipsUntouchedEmptyGroups(t *testing.T) {
	usage := testUsage()
	err := CheckDelta(usage, nil)
	assert.NoError(t, err)
}

func TestCheckDelta_AggregatesViolations(t *testing.T) {
	usage := testUsage()
	usage[0].Count = 3
	usage[1].Count = 1

	err := CheckDelta(usage, map[string]int{"species": 1, "origin": 1})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Violations, 2)

	// Position order, every failing group named
	assert.Equal(t, "species", violation.Violations[0].GroupID)
	assert.Equal(t, "origin", violation.Violations[1].GroupID)
}

func TestCheckDelta_SingleSlotGroup(t *testing.T) {
	usage := testUsage()
	usage[1].Count = 1

	// max_count=1 group with one tag rejects any further addition
	err := CheckDelta(usage, map[string]int{"origin": 1})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "origin", violation.Violations[0].GroupID)
}

func TestCheckStrict_MinAndMax(t *testing.T) {
	usage := testUsage()

	err := CheckStrict(usage, map[string]int{"origin": 2})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	require.Len(t, violation.Violations, 2)

	// species missing entirely, origin over its max
	assert.Equal(t, "species", violation.Violations[0].GroupID)
	assert.Equal(t, "min", violation.Violations[0].Bound)
	assert.Equal(t, "origin", violation.Violations[1].GroupID)
	assert.Equal(t, "max", violation.Violations[1].Bound)
}

func TestCheckStrict_Valid(t *testing.T) {
	err := CheckStrict(testUsage(), map[string]int{"species": 1, "origin": 1, "extras": 12})
	assert.NoError(t, err)
}

func TestViolationMessages(t *testing.T) {
	err := &ConstraintViolationError{Violations: []Violation{
		{GroupID: "species", Bound: "min", Limit: 1, Count: 0},
		{GroupID: "origin", Bound: "max", Limit: 1, Count: 2},
	}}
	msg := err.Error()
	assert.Contains(t, msg, `group "species" requires at least 1`)
	assert.Contains(t, msg, `group "origin" allows at most 1`)
}
