package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/store"
	"github.com/mediastash/tagger/internal/tagging"
)

// Server wraps the tagging engine and exposes it as MCP tools so
// assistants can drive the tagging workflow over stdio.
type Server struct {
	store   store.Store
	tagging *tagging.Service
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, svc *tagging.Service) *Server {
	return &Server{store: s, tagging: svc}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tagger", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listGroupsTool())
	srv.AddTool(s.searchTagsTool())
	srv.AddTool(s.ensureTagTool())
	srv.AddTool(s.assignTagsTool())
	srv.AddTool(s.unassignTagsTool())
	srv.AddTool(s.contentValidationTool())
	srv.AddTool(s.nextContentTool())
	srv.AddTool(s.completeContentTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// tagger_list_groups
func (s *Server) listGroupsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_list_groups",
		mcp.WithDescription("List all tag groups in taxonomy order. Each group has id, description, required, min, max (null = unbounded), and position. Every tag belongs to exactly one group and group bounds constrain how many tags of that group a content item may carry."),
	)
	return tool, s.handleListGroups
}

func (s *Server) handleListGroups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list groups: %v", err)), nil
	}

	type groupOut struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Required    bool   `json:"required"`
		Min         int    `json:"min"`
		Max         *int   `json:"max"`
		Position    int    `json:"position"`
	}

	out := make([]groupOut, len(groups))
	for i, g := range groups {
		out[i] = groupOut{
			ID:          g.ID,
			Description: g.Description,
			Required:    g.Required,
			Min:         g.MinCount,
			Max:         g.MaxCount,
			Position:    g.Position,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal groups: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_search_tags
func (s *Server) searchTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_search_tags",
		mcp.WithDescription("Search tags within one group for autocomplete. An empty query returns the most used tags. A non-empty query matches on label prefix or close misspellings, ranked: prefix matches first, then edit distance, then usage."),
		mcp.WithString("group", mcp.Required(), mcp.Description("Tag group id to search within")),
		mcp.WithString("query", mcp.Description("Search query (may be empty for top tags)")),
		mcp.WithString("limit", mcp.Description("Maximum number of results (default 10)")),
	)
	return tool, s.handleSearchTags
}

func (s *Server) handleSearchTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	group, err := request.RequireString("group")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: group"), nil
	}
	query := request.GetString("query", "")

	limit := 0
	if v := request.GetString("limit", ""); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", v)), nil
		}
	}

	tags, err := s.tagging.Search(ctx, group, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	data, err := json.Marshal(tagsOut(tags))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal tags: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_ensure_tag
func (s *Server) ensureTagTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_ensure_tag",
		mcp.WithDescription("Get or create a tag by group and label. The tag id is derived from the label, so calling this twice with the same label returns the same tag. Returns the tag plus whether it was newly created."),
		mcp.WithString("group", mcp.Required(), mcp.Description("Tag group id")),
		mcp.WithString("label", mcp.Required(), mcp.Description("Human-readable tag label")),
	)
	return tool, s.handleEnsureTag
}

func (s *Server) handleEnsureTag(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	group, err := request.RequireString("group")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: group"), nil
	}
	label, err := request.RequireString("label")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: label"), nil
	}

	tag, created, err := s.tagging.EnsureTag(ctx, group, label)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ensure tag: %v", err)), nil
	}

	result := map[string]any{
		"id":       tag.ID,
		"label":    tag.Label,
		"group_id": tag.GroupID,
		"created":  created,
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_assign_tags
func (s *Server) assignTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_assign_tags",
		mcp.WithDescription("Assign tags to a content item. Validates group max bounds against the would-be state before writing; on violation nothing is written and every violated group is reported. Already-assigned tags are skipped silently. tag_ids is a comma-separated list of tag ids."),
		mcp.WithString("content_id", mcp.Required(), mcp.Description("Content item id")),
		mcp.WithString("tag_ids", mcp.Required(), mcp.Description("Comma-separated tag ids, e.g. \"species:human,origin:earth\"")),
	)
	return tool, s.handleAssignTags
}

func (s *Server) handleAssignTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentID, err := request.RequireString("content_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content_id"), nil
	}
	tagIDs, err := requireTagIDs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.tagging.Assign(ctx, contentID, tagIDs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_unassign_tags
func (s *Server) unassignTagsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_unassign_tags",
		mcp.WithDescription("Remove tags from a content item. Removing a tag that is not assigned is a no-op. Removal is never blocked by group minimums; a completed item that drops below its bounds shows up in validation instead."),
		mcp.WithString("content_id", mcp.Required(), mcp.Description("Content item id")),
		mcp.WithString("tag_ids", mcp.Required(), mcp.Description("Comma-separated tag ids")),
	)
	return tool, s.handleUnassignTags
}

func (s *Server) handleUnassignTags(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentID, err := request.RequireString("content_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content_id"), nil
	}
	tagIDs, err := requireTagIDs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.tagging.Unassign(ctx, contentID, tagIDs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_content_validation
func (s *Server) contentValidationTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_content_validation",
		mcp.WithDescription("Evaluate a content item against all group bounds. Returns per-group status (ok/missing/over_limit), overall validity, and completion percentage over required groups."),
		mcp.WithString("content_id", mcp.Required(), mcp.Description("Content item id")),
	)
	return tool, s.handleContentValidation
}

func (s *Server) handleContentValidation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentID, err := request.RequireString("content_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content_id"), nil
	}

	report, err := s.tagging.Check(ctx, contentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(report)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_next_content
func (s *Server) nextContentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_next_content",
		mcp.WithDescription("Get the oldest draft content item still awaiting tagging. Returns the item with its current tags, or an error when nothing is pending."),
	)
	return tool, s.handleNextContent
}

func (s *Server) handleNextContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.store.NextIncomplete(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no pending content: %v", err)), nil
	}

	tags, err := s.store.ContentTags(ctx, c.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load tags: %v", err)), nil
	}

	result := map[string]any{
		"id":         c.ID,
		"url":        c.URL,
		"site":       c.Site,
		"creator":    c.Creator,
		"type":       string(c.Type),
		"status":     string(c.Status),
		"created_at": c.CreatedAt.Format(time.RFC3339),
		"tags":       tagsOut(tags),
	}

	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// tagger_complete_content
func (s *Server) completeContentTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("tagger_complete_content",
		mcp.WithDescription("Mark a content item complete. Refused unless every group bound is satisfied; on refusal the validation report names the offending groups."),
		mcp.WithString("content_id", mcp.Required(), mcp.Description("Content item id")),
	)
	return tool, s.handleCompleteContent
}

func (s *Server) handleCompleteContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contentID, err := request.RequireString("content_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content_id"), nil
	}

	report, err := s.tagging.Complete(ctx, contentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := map[string]any{
		"status":     "complete",
		"content_id": contentID,
		"report":     report,
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func requireTagIDs(request mcp.CallToolRequest) ([]string, error) {
	raw, err := request.RequireString("tag_ids")
	if err != nil {
		return nil, fmt.Errorf("missing required parameter: tag_ids")
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			ids = append(ids, p)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("tag_ids must contain at least one tag id")
	}
	return ids, nil
}

type tagOut struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	GroupID    string `json:"group_id"`
	UsageCount int    `json:"usage_count"`
	LastUsed   string `json:"last_used,omitempty"`
}

func tagsOut(tags []*models.Tag) []tagOut {
	out := make([]tagOut, len(tags))
	for i, t := range tags {
		o := tagOut{ID: t.ID, Label: t.Label, GroupID: t.GroupID, UsageCount: t.UsageCount}
		if t.LastUsed != nil {
			o.LastUsed = t.LastUsed.Format(time.RFC3339)
		}
		out[i] = o
	}
	return out
}
