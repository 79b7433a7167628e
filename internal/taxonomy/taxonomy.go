// Package taxonomy loads tag-group definitions from a YAML file and
// seeds them into the store. File order defines group display and
// evaluation order.
package taxonomy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/store"
)

type fileGroup struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Min         int    `yaml:"min"`
	Max         *int   `yaml:"max"` // absent or -1 = unbounded
}

type taxonomyFile struct {
	Groups []fileGroup `yaml:"groups"`
}

// Load parses a taxonomy file into ordered group definitions.
func Load(path string) ([]*models.TagGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	return Parse(data)
}

// Parse parses taxonomy YAML into ordered group definitions.
func Parse(data []byte) ([]*models.TagGroup, error) {
	var f taxonomyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(f.Groups) == 0 {
		return nil, fmt.Errorf("taxonomy defines no groups")
	}

	seen := make(map[string]bool)
	groups := make([]*models.TagGroup, 0, len(f.Groups))
	for pos, fg := range f.Groups {
		if fg.ID == "" {
			return nil, fmt.Errorf("taxonomy group at position %d has no id", pos)
		}
		if seen[fg.ID] {
			return nil, fmt.Errorf("duplicate taxonomy group %q", fg.ID)
		}
		seen[fg.ID] = true

		if fg.Min < 0 {
			return nil, fmt.Errorf("group %q: min must be >= 0", fg.ID)
		}

		min := fg.Min
		// A required group always demands at least one tag.
		if fg.Required && min == 0 {
			min = 1
		}

		var max *int
		if fg.Max != nil && *fg.Max >= 0 {
			if *fg.Max < min {
				return nil, fmt.Errorf("group %q: max %d below min %d", fg.ID, *fg.Max, min)
			}
			v := *fg.Max
			max = &v
		}

		groups = append(groups, &models.TagGroup{
			ID:          fg.ID,
			Description: fg.Description,
			Required:    fg.Required,
			MinCount:    min,
			MaxCount:    max,
			Position:    pos,
		})
	}
	return groups, nil
}

// Seed inserts groups that do not exist yet; existing rows are left
// untouched, so calling it at every startup is safe. Returns the
// number of newly created groups.
func Seed(ctx context.Context, s store.Store, groups []*models.TagGroup) (int, error) {
	return s.SeedGroups(ctx, groups)
}

// Import upserts group definitions, overwriting bounds and positions
// of existing groups. Used by the explicit import operation.
func Import(ctx context.Context, s store.Store, groups []*models.TagGroup) error {
	return s.ReplaceGroups(ctx, groups)
}
