package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mediastash/tagger/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients drive the tagging workflow natively: search
tags, assign and unassign them, check validation, and complete items.
Configure a client with:

  {
    "mcpServers": {
      "tagger": { "command": "tagger", "args": ["mcp"] }
    }
  }

Available tools: tagger_list_groups, tagger_search_tags,
tagger_ensure_tag, tagger_assign_tags, tagger_unassign_tags,
tagger_content_validation, tagger_next_content, tagger_complete_content`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		svc, err := getService()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(s, svc)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
