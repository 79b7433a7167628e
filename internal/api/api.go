// Package api provides the REST handlers over the tagging engine. The
// transport contributes no logic of its own: it parses requests, calls
// the engine, and shapes responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mediastash/tagger/internal/backup"
	"github.com/mediastash/tagger/internal/models"
	"github.com/mediastash/tagger/internal/preview"
	"github.com/mediastash/tagger/internal/store"
	"github.com/mediastash/tagger/internal/tagging"
	"github.com/mediastash/tagger/internal/taxonomy"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	tagging  *tagging.Service
	previews *preview.Client
	backups  *backup.Manager
}

// NewServer creates a new API server. backups may be nil when no
// backup directory is configured.
func NewServer(s store.Store, svc *tagging.Service, pv *preview.Client, bk *backup.Manager) *Server {
	return &Server{store: s, tagging: svc, previews: pv, backups: bk}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/content", s.createContent)
	mux.HandleFunc("GET /api/v1/content", s.listContent)
	mux.HandleFunc("GET /api/v1/content/next", s.nextContent)
	mux.HandleFunc("POST /api/v1/content/bulk", s.bulkCreateContent)
	mux.HandleFunc("POST /api/v1/content/check-duplicates", s.checkDuplicates)
	mux.HandleFunc("GET /api/v1/content/{id}", s.getContent)
	mux.HandleFunc("DELETE /api/v1/content/{id}", s.deleteContent)
	mux.HandleFunc("POST /api/v1/content/{id}/complete", s.completeContent)
	mux.HandleFunc("GET /api/v1/content/{id}/validation", s.contentValidation)

	mux.HandleFunc("GET /api/v1/groups", s.listGroups)
	mux.HandleFunc("POST /api/v1/groups/import", s.importGroups)

	mux.HandleFunc("GET /api/v1/tags/search", s.searchTags)
	mux.HandleFunc("POST /api/v1/tags", s.createTag)
	mux.HandleFunc("POST /api/v1/tags/ensure", s.ensureTag)
	mux.HandleFunc("POST /api/v1/tags/assign", s.assignTags)
	mux.HandleFunc("POST /api/v1/tags/unassign", s.unassignTags)
	mux.HandleFunc("POST /api/v1/tags/validate", s.validateTags)

	mux.HandleFunc("POST /api/v1/backup", s.runBackup)

	return corsMiddleware(logMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps engine errors onto HTTP responses: business
// errors carry structure for the UI, store failures stay generic.
func writeDomainError(w http.ResponseWriter, err error) {
	var unknown *tagging.UnknownTagError
	if errors.As(err, &unknown) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":        unknown.Error(),
			"unknown_tags": unknown.TagIDs,
		})
		return
	}

	var violation *tagging.ConstraintViolationError
	if errors.As(err, &violation) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      violation.Error(),
			"violations": violation.Violations,
		})
		return
	}

	var incomplete *tagging.IncompleteContentError
	if errors.As(err, &incomplete) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  incomplete.Error(),
			"report": incomplete.Report,
		})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, store.ErrDuplicateURL) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	slog.Error("internal error", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// --- Response shapes ---

type tagJSON struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	GroupID    string     `json:"group_id"`
	UsageCount int        `json:"usage_count"`
	LastUsed   *time.Time `json:"last_used"`
}

func tagOut(t *models.Tag) tagJSON {
	return tagJSON{ID: t.ID, Label: t.Label, GroupID: t.GroupID, UsageCount: t.UsageCount, LastUsed: t.LastUsed}
}

func tagsOut(tags []*models.Tag) []tagJSON {
	out := make([]tagJSON, len(tags))
	for i, t := range tags {
		out[i] = tagOut(t)
	}
	return out
}

type groupJSON struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Min         int    `json:"min"`
	Max         *int   `json:"max"`
	Position    int    `json:"position"`
}

func groupOut(g *models.TagGroup) groupJSON {
	return groupJSON{
		ID:          g.ID,
		Description: g.Description,
		Required:    g.Required,
		Min:         g.MinCount,
		Max:         g.MaxCount,
		Position:    g.Position,
	}
}

type contentJSON struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Site      string    `json:"site,omitempty"`
	Creator   string    `json:"creator,omitempty"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []tagJSON `json:"tags,omitempty"`
}

func contentOut(c *models.Content) contentJSON {
	return contentJSON{
		ID:        c.ID,
		URL:       c.URL,
		Site:      c.Site,
		Creator:   c.Creator,
		Type:      string(c.Type),
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
}

// --- Content ---

func (s *Server) createContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL     string `json:"url"`
		Site    string `json:"site"`
		Creator string `json:"creator"`
		Type    string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	c := &models.Content{
		URL:     req.URL,
		Site:    req.Site,
		Creator: req.Creator,
		Type:    models.ContentType(req.Type),
	}
	if err := s.store.CreateContent(r.Context(), c); err != nil {
		writeDomainError(w, err)
		return
	}

	// Preview derivation is best effort and must never block or fail
	// content creation.
	if s.previews != nil {
		go func(id, url string) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.previews.Build(ctx, s.store, id, url)
		}(c.ID, c.URL)
	}

	writeJSON(w, http.StatusCreated, contentOut(c))
}

func (s *Server) listContent(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListContent(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]contentJSON, len(items))
	for i, tc := range items {
		cj := contentOut(&tc.Content)
		for t := range tc.Tags {
			tag := tc.Tags[t]
			cj.Tags = append(cj.Tags, tagOut(&tag))
		}
		out[i] = cj
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) nextContent(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.NextIncomplete(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contentOut(c))
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	c, err := s.store.GetContent(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	tags, err := s.store.ContentTags(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Tags grouped by group id, preserving group position order.
	grouped := make(map[string][]tagJSON)
	for _, t := range tags {
		grouped[t.GroupID] = append(grouped[t.GroupID], tagOut(t))
	}

	report, err := s.tagging.Check(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"content": contentOut(c),
		"tags":    grouped,
		"validation": map[string]any{
			"valid":                   report.Valid,
			"completion_pct":          report.CompletionPct,
			"missing_required_groups": report.MissingRequiredGroups(),
			"summary":                 report.Summary,
		},
	}
	if p, err := s.store.GetPreview(ctx, id); err == nil {
		resp["preview"] = p
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.SetContentStatus(r.Context(), id, models.ContentStatusDeleted); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "content_id": id})
}

func (s *Server) completeContent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, err := s.tagging.Complete(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "complete",
		"content_id": id,
		"report":     report,
	})
}

func (s *Server) contentValidation(w http.ResponseWriter, r *http.Request) {
	report, err := s.tagging.Check(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) bulkCreateContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []struct {
			URL     string   `json:"url"`
			Site    string   `json:"site"`
			Creator string   `json:"creator"`
			Type    string   `json:"type"`
			TagIDs  []string `json:"tag_ids"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "no items provided")
		return
	}

	ctx := r.Context()
	var created, skippedURLs []string
	tagErrors := make(map[string]string)

	for _, item := range req.Items {
		c := &models.Content{
			URL:     item.URL,
			Site:    item.Site,
			Creator: item.Creator,
			Type:    models.ContentType(item.Type),
		}
		if err := s.store.CreateContent(ctx, c); err != nil {
			if errors.Is(err, store.ErrDuplicateURL) {
				skippedURLs = append(skippedURLs, item.URL)
				continue
			}
			writeDomainError(w, err)
			return
		}
		created = append(created, c.ID)

		if len(item.TagIDs) > 0 {
			if _, err := s.tagging.Assign(ctx, c.ID, item.TagIDs); err != nil {
				// The item itself is kept; tagging problems are
				// reported per URL so the caller can fix and retag.
				tagErrors[item.URL] = err.Error()
			}
		}
	}

	resp := map[string]any{
		"created":      len(created),
		"skipped":      len(skippedURLs),
		"skipped_urls": skippedURLs,
	}
	if len(tagErrors) > 0 {
		resp["tag_errors"] = tagErrors
	}

	if len(created) > 0 && s.backups != nil {
		if path, err := s.backups.Snapshot(ctx); err != nil {
			slog.Error("bulk snapshot failed", "err", err)
			resp["backup"] = map[string]any{"scheduled": false}
		} else {
			s.backups.EnqueueSync(path)
			resp["backup"] = map[string]any{
				"scheduled": true,
				"snapshot":  backup.SnapshotName,
				"last_sync": s.backups.LastSync(),
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) checkDuplicates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	existing, err := s.store.ExistingURLs(r.Context(), req.URLs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if existing == nil {
		existing = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"existing": existing})
}

// --- Tag groups ---

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]groupJSON, len(groups))
	for i, g := range groups {
		out[i] = groupOut(g)
	}
	writeJSON(w, http.StatusOK, out)
}

// importGroups accepts a raw taxonomy YAML body and upserts the
// definitions, overwriting bounds of existing groups.
func (s *Server) importGroups(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	groups, err := taxonomy.Parse(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := taxonomy.Import(r.Context(), s.store, groups); err != nil {
		writeDomainError(w, err)
		return
	}

	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(groups), "groups": ids})
}

// --- Tags ---

func (s *Server) searchTags(w http.ResponseWriter, r *http.Request) {
	group := r.URL.Query().Get("group")
	if group == "" {
		writeError(w, http.StatusBadRequest, "group is required")
		return
	}
	query := r.URL.Query().Get("q")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	tags, err := s.tagging.Search(r.Context(), group, query, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tagsOut(tags))
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Label   string `json:"label"`
		GroupID string `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Label == "" || req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "label and group_id are required")
		return
	}

	if _, err := s.store.GetGroup(r.Context(), req.GroupID); err != nil {
		writeDomainError(w, err)
		return
	}

	tag := &models.Tag{ID: req.ID, Label: req.Label, GroupID: req.GroupID}
	if err := s.store.CreateTag(r.Context(), tag); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok", "tag_id": tag.ID})
}

func (s *Server) ensureTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID string `json:"group_id"`
		Label   string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Label == "" || req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "label and group_id are required")
		return
	}

	tag, createdNew, err := s.tagging.EnsureTag(r.Context(), req.GroupID, req.Label)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       tag.ID,
		"label":    tag.Label,
		"group_id": tag.GroupID,
		"created":  createdNew,
	})
}

type assignRequest struct {
	ContentID string   `json:"content_id"`
	TagIDs    []string `json:"tag_ids"`
}

func (s *Server) assignTags(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	result, err := s.tagging.Assign(r.Context(), req.ContentID, req.TagIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) unassignTags(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	result, err := s.tagging.Unassign(r.Context(), req.ContentID, req.TagIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) validateTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContentID string   `json:"content_id"`
		TagIDs    []string `json:"tag_ids"`
		Mode      string   `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ContentID == "" {
		writeError(w, http.StatusBadRequest, "content_id is required")
		return
	}

	mode := tagging.ModeDelta
	if req.Mode == string(tagging.ModeStrict) {
		mode = tagging.ModeStrict
	}

	if err := s.tagging.Validate(r.Context(), req.ContentID, req.TagIDs, mode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// --- Backup ---

func (s *Server) runBackup(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "backups not configured")
		return
	}

	path, err := s.backups.Snapshot(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.backups.EnqueueSync(path)

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot":  backup.SnapshotName,
		"last_sync": s.backups.LastSync(),
	})
}
