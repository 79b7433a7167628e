package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediastash/tagger/internal/output"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage tag groups",
	Long:  "Inspect the tag-group taxonomy and its cardinality bounds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return groupListRun()
	},
}

var groupListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all tag groups in taxonomy order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return groupListRun()
	},
}

func init() {
	groupCmd.AddCommand(groupListCmd)
	rootCmd.AddCommand(groupCmd)
}

func groupListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	groups, err := s.ListGroups(rootCmd.Context())
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		ui.Info("No tag groups. Use 'tagger seed <file>' to load a taxonomy.")
		return nil
	}

	table := ui.Table([]string{"ID", "Required", "Min", "Max", "Description"})
	for _, g := range groups {
		required := ""
		if g.Required {
			required = output.Yellow("yes")
		}
		max := "-"
		if g.MaxCount != nil {
			max = fmt.Sprintf("%d", *g.MaxCount)
		}
		_ = table.Append([]string{
			output.Cyan(g.ID),
			required,
			fmt.Sprintf("%d", g.MinCount),
			max,
			g.Description,
		})
	}
	_ = table.Render()
	return nil
}
