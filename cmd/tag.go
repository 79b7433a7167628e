package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediastash/tagger/internal/output"
)

var tagSearchLimit int

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Search, create, and assign tags",
	Long:  "Search tags for autocomplete, create tags from labels, and assign or unassign them on content items.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var tagSearchCmd = &cobra.Command{
	Use:   "search <group> [query]",
	Short: "Search tags within a group",
	Long: `Search tags within one group. Without a query the most used tags
are shown. With a query, labels matching by prefix or by close
misspelling are ranked: prefix matches first, then edit distance,
then usage.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 2 {
			query = args[1]
		}
		return tagSearchRun(args[0], query)
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list <group>",
	Short: "List all tags in a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagListRun(args[0])
	},
}

var tagEnsureCmd = &cobra.Command{
	Use:   "ensure <group> <label>",
	Short: "Get or create a tag by label",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagEnsureRun(args[0], args[1])
	},
}

var tagAssignCmd = &cobra.Command{
	Use:   "assign <content-id> <tag-id>...",
	Short: "Assign tags to a content item",
	Long: `Assign one or more tags to a content item. Group maximums are
validated against the would-be state first; on violation nothing is
written and every violated group is reported.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagAssignRun(args[0], args[1:])
	},
}

var tagUnassignCmd = &cobra.Command{
	Use:   "unassign <content-id> <tag-id>...",
	Short: "Remove tags from a content item",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tagUnassignRun(args[0], args[1:])
	},
}

func init() {
	tagSearchCmd.Flags().IntVarP(&tagSearchLimit, "limit", "l", 10, "Maximum number of results")

	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagSearchCmd)
	tagCmd.AddCommand(tagEnsureCmd)
	tagCmd.AddCommand(tagAssignCmd)
	tagCmd.AddCommand(tagUnassignCmd)
	rootCmd.AddCommand(tagCmd)
}

func tagSearchRun(groupID, query string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	tags, err := svc.Search(rootCmd.Context(), groupID, query, tagSearchLimit)
	if err != nil {
		return err
	}

	if len(tags) == 0 {
		ui.Info("No matching tags in group %s", groupID)
		return nil
	}

	table := ui.Table([]string{"ID", "Label", "Uses", "Last Used"})
	for _, t := range tags {
		lastUsed := "-"
		if t.LastUsed != nil {
			lastUsed = t.LastUsed.Format("2006-01-02")
		}
		_ = table.Append([]string{
			output.Cyan(t.ID),
			t.Label,
			fmt.Sprintf("%d", t.UsageCount),
			lastUsed,
		})
	}
	_ = table.Render()
	return nil
}

func tagListRun(groupID string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	tags, err := s.ListGroupTags(rootCmd.Context(), groupID)
	if err != nil {
		return err
	}

	if len(tags) == 0 {
		ui.Info("No tags in group %s", groupID)
		return nil
	}

	table := ui.Table([]string{"ID", "Label", "Uses"})
	for _, t := range tags {
		_ = table.Append([]string{
			output.Cyan(t.ID),
			t.Label,
			fmt.Sprintf("%d", t.UsageCount),
		})
	}
	_ = table.Render()
	return nil
}

func tagEnsureRun(groupID, label string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	tag, created, err := svc.EnsureTag(rootCmd.Context(), groupID, label)
	if err != nil {
		return err
	}

	if created {
		ui.Success("Created tag: %s", output.Cyan(tag.ID))
	} else {
		ui.Info("Tag exists: %s", output.Cyan(tag.ID))
	}
	return nil
}

func tagAssignRun(contentID string, tagIDs []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	result, err := svc.Assign(rootCmd.Context(), contentID, tagIDs)
	if err != nil {
		return err
	}

	if len(result.Applied) == 0 {
		ui.Info("All tags already assigned")
		return nil
	}
	ui.Success("Assigned %d tags: %s", len(result.Applied), strings.Join(result.Applied, ", "))
	return nil
}

func tagUnassignRun(contentID string, tagIDs []string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	result, err := svc.Unassign(rootCmd.Context(), contentID, tagIDs)
	if err != nil {
		return err
	}

	if len(result.Removed) == 0 {
		ui.Info("None of those tags were assigned")
		return nil
	}
	ui.Success("Removed %d tags: %s", len(result.Removed), strings.Join(result.Removed, ", "))
	return nil
}
