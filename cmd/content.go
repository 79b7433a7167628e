package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/output"
	"github.com/mediastash/tagger/internal/tagging"
)

var (
	contentSite    string
	contentCreator string
	contentType    string
)

var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Manage content items",
	Long:  "Add, list, inspect, and complete content items in the tagging queue.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return contentListRun()
	},
}

var contentListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all content items with their tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return contentListRun()
	},
}

var contentAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Add a content item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return contentAddRun(args[0])
	},
}

var contentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a content item with its validation report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return contentShowRun(args[0])
	},
}

var contentNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the oldest draft item awaiting tagging",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		c, err := s.NextIncomplete(rootCmd.Context())
		if err != nil {
			return err
		}
		return contentShowRun(c.ID)
	},
}

var contentCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a content item complete",
	Long: `Mark a content item complete. The transition is refused while any
tag group is below its minimum or above its maximum.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return contentCompleteRun(args[0])
	},
}

var contentDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Soft-delete a content item",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return contentDeleteRun(args[0])
	},
}

func init() {
	contentAddCmd.Flags().StringVar(&contentSite, "site", "", "Source site name")
	contentAddCmd.Flags().StringVar(&contentCreator, "creator", "", "Creator name")
	contentAddCmd.Flags().StringVar(&contentType, "type", "image", "Content type: image or video")

	contentCmd.AddCommand(contentListCmd)
	contentCmd.AddCommand(contentAddCmd)
	contentCmd.AddCommand(contentShowCmd)
	contentCmd.AddCommand(contentNextCmd)
	contentCmd.AddCommand(contentCompleteCmd)
	contentCmd.AddCommand(contentDeleteCmd)
	rootCmd.AddCommand(contentCmd)
}

func contentListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	items, err := s.ListContent(rootCmd.Context())
	if err != nil {
		return err
	}

	if len(items) == 0 {
		ui.Info("No content. Use 'tagger content add <url>' to add some.")
		return nil
	}

	table := ui.Table([]string{"ID", "Status", "Type", "Tags", "URL"})
	for _, tc := range items {
		labels := make([]string, len(tc.Tags))
		for i, t := range tc.Tags {
			labels[i] = t.Label
		}
		_ = table.Append([]string{
			output.Cyan(shortID(tc.ID)),
			output.StatusColor(string(tc.Status)),
			string(tc.Type),
			strings.Join(labels, ", "),
			tc.URL,
		})
	}
	_ = table.Render()
	return nil
}

func contentAddRun(url string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	c := &models.Content{
		URL:     url,
		Site:    contentSite,
		Creator: contentCreator,
		Type:    models.ContentType(contentType),
	}
	if err := s.CreateContent(rootCmd.Context(), c); err != nil {
		return fmt.Errorf("create content: %w", err)
	}

	ui.Success("Added content %s", output.Cyan(c.ID))
	return nil
}

func contentShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := rootCmd.Context()

	c, err := s.GetContent(ctx, id)
	if err != nil {
		return err
	}

	ui.Info("%s  %s  %s", output.Cyan(c.ID), output.StatusColor(string(c.Status)), c.URL)
	if c.Site != "" || c.Creator != "" {
		ui.VerboseLog("site=%s creator=%s", c.Site, c.Creator)
	}

	report, err := svc.Check(ctx, c.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Group", "Count", "Min", "Max", "Status"})
	for _, g := range report.Groups {
		max := "-"
		if g.MaxCount != nil {
			max = fmt.Sprintf("%d", *g.MaxCount)
		}
		_ = table.Append([]string{
			g.GroupID,
			fmt.Sprintf("%d", g.Count),
			fmt.Sprintf("%d", g.MinCount),
			max,
			output.GroupStatusColor(string(g.Status)),
		})
	}
	_ = table.Render()

	fmt.Fprintln(ui.Out)
	ui.Info("Completion: %s", output.CompletionColor(report.CompletionPct))
	return nil
}

func contentCompleteRun(id string) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	_, err = svc.Complete(rootCmd.Context(), id)
	if err != nil {
		var incomplete *tagging.IncompleteContentError
		if errors.As(err, &incomplete) {
			ui.Error("Cannot complete %s:", id)
			for _, g := range incomplete.Report.Groups {
				if g.Status == tagging.GroupStatusOK {
					continue
				}
				ui.Warning("  %s: %s (count %d, min %d)", g.GroupID, g.Status, g.Count, g.MinCount)
			}
			return fmt.Errorf("content is incomplete")
		}
		return err
	}

	ui.Success("Content %s marked complete", output.Cyan(id))
	return nil
}

func contentDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if err := s.SetContentStatus(rootCmd.Context(), id, models.ContentStatusDeleted); err != nil {
		return err
	}
	ui.Success("Deleted content %s", id)
	return nil
}

// shortID truncates a ULID for table display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
