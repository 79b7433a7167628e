package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mediastash/tagger/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent HTTP requests.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

// slugify normalizes a tag label into the slug part of a tag id:
// "Deep Sea  Diving!" -> "deep_sea_diving".
func slugify(label string) string {
	slug := strings.ToLower(strings.TrimSpace(label))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugCollapse.ReplaceAllString(slug, "_")
	return slug
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Snapshot writes a consistent copy of the database to destPath.
func (s *SQLiteStore) Snapshot(ctx context.Context, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite an existing file.
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}

// --- Tag groups ---

// SeedGroups inserts any groups that do not exist yet and returns the
// number inserted. Existing rows are left untouched, so re-seeding at
// startup is idempotent.
func (s *SQLiteStore) SeedGroups(ctx context.Context, groups []*models.TagGroup) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	inserted := 0
	for _, g := range groups {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tag_group (id, description, required, min_count, max_count, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Description, boolToInt(g.Required), g.MinCount, maxCountValue(g.MaxCount), g.Position, now,
		)
		if err != nil {
			return 0, fmt.Errorf("seed group %s: %w", g.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return inserted, nil
}

// ReplaceGroups upserts group definitions, overwriting bounds and
// positions of existing groups. Used by explicit taxonomy import.
func (s *SQLiteStore) ReplaceGroups(ctx context.Context, groups []*models.TagGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, g := range groups {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tag_group (id, description, required, min_count, max_count, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				description = excluded.description,
				required = excluded.required,
				min_count = excluded.min_count,
				max_count = excluded.max_count,
				position = excluded.position`,
			g.ID, g.Description, boolToInt(g.Required), g.MinCount, maxCountValue(g.MaxCount), g.Position, now,
		)
		if err != nil {
			return fmt.Errorf("replace group %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGroups(ctx context.Context) ([]*models.TagGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, required, min_count, max_count, position, created_at
		FROM tag_group ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []*models.TagGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*models.TagGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, description, required, min_count, max_count, position, created_at
		FROM tag_group WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tag group %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.TagGroup, error) {
	g := &models.TagGroup{}
	var required int
	var maxCount sql.NullInt64
	if err := row.Scan(&g.ID, &g.Description, &required, &g.MinCount, &maxCount, &g.Position, &g.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	g.Required = required == 1
	if maxCount.Valid {
		v := int(maxCount.Int64)
		g.MaxCount = &v
	}
	return g, nil
}

func maxCountValue(max *int) any {
	if max == nil {
		return nil
	}
	return *max
}

// --- Tags ---

func (s *SQLiteStore) CreateTag(ctx context.Context, tag *models.Tag) error {
	if tag.ID == "" {
		tag.ID = tag.GroupID + ":" + slugify(tag.Label)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tag (id, label, group_id, usage_count, last_used)
		VALUES (?, ?, ?, 0, NULL)`,
		tag.ID, tag.Label, tag.GroupID,
	)
	if err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// EnsureTag creates a tag from group + label if it does not exist and
// returns the stored row. The bool reports whether a row was created.
func (s *SQLiteStore) EnsureTag(ctx context.Context, groupID, label string) (*models.Tag, bool, error) {
	if _, err := s.GetGroup(ctx, groupID); err != nil {
		return nil, false, err
	}

	tagID := groupID + ":" + slugify(label)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO tag (id, label, group_id, usage_count, last_used)
		VALUES (?, ?, ?, 0, NULL)`,
		tagID, label, groupID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("ensure tag: %w", err)
	}
	n, _ := res.RowsAffected()

	tags, err := s.GetTags(ctx, []string{tagID})
	if err != nil {
		return nil, false, err
	}
	if len(tags) == 0 {
		return nil, false, fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	return tags[0], n == 1, nil
}

// GetTags returns the tag rows for the given ids. Unknown ids are
// simply absent from the result; the caller decides whether that is an
// error.
func (s *SQLiteStore) GetTags(ctx context.Context, ids []string) ([]*models.Tag, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, group_id, usage_count, last_used FROM tag
		WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTags(rows)
}

func (s *SQLiteStore) ListGroupTags(ctx context.Context, groupID string) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, group_id, usage_count, last_used FROM tag
		WHERE group_id = ? ORDER BY label`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTags(rows)
}

// TopGroupTags returns the most used tags in a group, most recent
// last_used breaking ties. NULL last_used sorts last under DESC.
func (s *SQLiteStore) TopGroupTags(ctx context.Context, groupID string, limit int) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, group_id, usage_count, last_used FROM tag
		WHERE group_id = ?
		ORDER BY usage_count DESC, last_used DESC
		LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("top group tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTags(rows)
}

func scanTags(rows *sql.Rows) ([]*models.Tag, error) {
	var tags []*models.Tag
	for rows.Next() {
		t := &models.Tag{}
		var lastUsed sql.NullTime
		if err := rows.Scan(&t.ID, &t.Label, &t.GroupID, &t.UsageCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		if lastUsed.Valid {
			t.LastUsed = &lastUsed.Time
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// --- Content ---

func (s *SQLiteStore) CreateContent(ctx context.Context, c *models.Content) error {
	if c.ID == "" {
		c.ID = newULID()
	}
	if c.Status == "" {
		c.Status = models.ContentStatusDraft
	}
	if c.Type == "" {
		c.Type = models.ContentTypeImage
	}
	c.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content (id, url, site, creator, type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.URL, c.Site, c.Creator, string(c.Type), string(c.Status), c.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: content.url") {
			return fmt.Errorf("content url %s: %w", c.URL, ErrDuplicateURL)
		}
		return fmt.Errorf("create content: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	c := &models.Content{}
	var ctype, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, site, creator, type, status, created_at
		FROM content WHERE id = ?`, id,
	).Scan(&c.ID, &c.URL, &c.Site, &c.Creator, &ctype, &status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	c.Type = models.ContentType(ctype)
	c.Status = models.ContentStatus(status)
	return c, nil
}

// ListContent returns all non-deleted content with tags in group
// display order, newest first.
func (s *SQLiteStore) ListContent(ctx context.Context) ([]*models.TaggedContent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, site, creator, type, status, created_at
		FROM content WHERE status != ? ORDER BY created_at DESC`,
		string(models.ContentStatusDeleted))
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*models.TaggedContent
	for rows.Next() {
		tc := &models.TaggedContent{}
		var ctype, status string
		if err := rows.Scan(&tc.ID, &tc.URL, &tc.Site, &tc.Creator, &ctype, &status, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		tc.Type = models.ContentType(ctype)
		tc.Status = models.ContentStatus(status)
		items = append(items, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, tc := range items {
		tags, err := s.ContentTags(ctx, tc.ID)
		if err != nil {
			return nil, err
		}
		for _, t := range tags {
			tc.Tags = append(tc.Tags, *t)
		}
	}
	return items, nil
}

// NextIncomplete returns the oldest content item still awaiting tags.
func (s *SQLiteStore) NextIncomplete(ctx context.Context) (*models.Content, error) {
	c := &models.Content{}
	var ctype, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, site, creator, type, status, created_at
		FROM content WHERE status = ? ORDER BY created_at LIMIT 1`,
		string(models.ContentStatusDraft),
	).Scan(&c.ID, &c.URL, &c.Site, &c.Creator, &ctype, &status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("draft content: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("next incomplete: %w", err)
	}
	c.Type = models.ContentType(ctype)
	c.Status = models.ContentStatus(status)
	return c, nil
}

func (s *SQLiteStore) SetContentStatus(ctx context.Context, id string, status models.ContentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE content SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set content status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ContentExists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content WHERE id = ? AND status != ?`,
		id, string(models.ContentStatusDeleted)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("content exists: %w", err)
	}
	return count > 0, nil
}

// ExistingURLs returns the subset of urls already tracked.
func (s *SQLiteStore) ExistingURLs(ctx context.Context, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(urls))
	args := make([]any, len(urls))
	for i, u := range urls {
		placeholders[i] = "?"
		args[i] = u
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM content WHERE url IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("existing urls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var existing []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		existing = append(existing, u)
	}
	return existing, rows.Err()
}

// --- Tag associations ---

// GroupUsage returns, for every tag group in position order, the
// group's bounds and the number of its tags currently assigned to the
// content item. Groups with no assigned tags report a count of zero.
func (s *SQLiteStore) GroupUsage(ctx context.Context, contentID string) ([]models.GroupUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT
			tg.id,
			tg.required,
			tg.min_count,
			tg.max_count,
			tg.position,
			COUNT(ct.tag_id) AS current_count
		FROM tag_group tg
		LEFT JOIN tag t ON t.group_id = tg.id
		LEFT JOIN content_tag ct
		  ON ct.tag_id = t.id
		 AND ct.content_id = ?
		GROUP BY tg.id, tg.required, tg.min_count, tg.max_count, tg.position
		ORDER BY tg.position`, contentID)
	if err != nil {
		return nil, fmt.Errorf("group usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var usage []models.GroupUsage
	for rows.Next() {
		var u models.GroupUsage
		var required int
		var maxCount sql.NullInt64
		if err := rows.Scan(&u.GroupID, &required, &u.MinCount, &maxCount, &u.Position, &u.Count); err != nil {
			return nil, fmt.Errorf("scan group usage: %w", err)
		}
		u.Required = required == 1
		if maxCount.Valid {
			v := int(maxCount.Int64)
			u.MaxCount = &v
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

// ContentTags returns the tags assigned to a content item, ordered by
// group position then usage.
func (s *SQLiteStore) ContentTags(ctx context.Context, contentID string) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.label, t.group_id, t.usage_count, t.last_used
		FROM content_tag ct
		JOIN tag t ON t.id = ct.tag_id
		JOIN tag_group tg ON tg.id = t.group_id
		WHERE ct.content_id = ?
		ORDER BY tg.position, t.usage_count DESC`, contentID)
	if err != nil {
		return nil, fmt.Errorf("content tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTags(rows)
}

// ApplyAssignment inserts (content_id, tag_id) pairs and bumps usage
// metadata for pairs that were actually new, in one transaction.
// Re-asserting an existing pair is a no-op and does not double-count
// usage. Returns the tag ids newly applied.
func (s *SQLiteStore) ApplyAssignment(ctx context.Context, contentID string, tagIDs []string, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var applied []string
	for _, tagID := range tagIDs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO content_tag (content_id, tag_id) VALUES (?, ?)`,
			contentID, tagID)
		if err != nil {
			return nil, fmt.Errorf("assign tag %s: %w", tagID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue // pair already present
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tag SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
			now, tagID); err != nil {
			return nil, fmt.Errorf("bump tag usage %s: %w", tagID, err)
		}
		applied = append(applied, tagID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return applied, nil
}

// RemoveAssignment deletes (content_id, tag_id) pairs and decrements
// usage counts, floored at zero, for pairs that actually existed.
// Removing an absent pair is a no-op. Returns the tag ids removed.
func (s *SQLiteStore) RemoveAssignment(ctx context.Context, contentID string, tagIDs []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed []string
	for _, tagID := range tagIDs {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM content_tag WHERE content_id = ? AND tag_id = ?`,
			contentID, tagID)
		if err != nil {
			return nil, fmt.Errorf("unassign tag %s: %w", tagID, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			continue // pair was not present
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE tag SET usage_count = MAX(usage_count - 1, 0) WHERE id = ?`,
			tagID); err != nil {
			return nil, fmt.Errorf("drop tag usage %s: %w", tagID, err)
		}
		removed = append(removed, tagID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return removed, nil
}

// --- Previews ---

func (s *SQLiteStore) UpsertPreview(ctx context.Context, p *models.Preview) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO content_preview (content_id, preview_type, preview_url, preview_url_normalized, title, description, preview_status, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			preview_type = excluded.preview_type,
			preview_url = excluded.preview_url,
			preview_url_normalized = excluded.preview_url_normalized,
			title = excluded.title,
			description = excluded.description,
			preview_status = excluded.preview_status,
			fetched_at = excluded.fetched_at`,
		p.ContentID, string(p.Type), p.URL, p.NormalizedURL, p.Title, p.Description, string(p.Status), p.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert preview: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPreview(ctx context.Context, contentID string) (*models.Preview, error) {
	p := &models.Preview{}
	var ptype, status string
	var fetchedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT content_id, preview_type, preview_url, preview_url_normalized, title, description, preview_status, fetched_at
		FROM content_preview WHERE content_id = ?`, contentID,
	).Scan(&p.ContentID, &ptype, &p.URL, &p.NormalizedURL, &p.Title, &p.Description, &status, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("preview for %s: %w", contentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get preview: %w", err)
	}
	p.Type = models.PreviewType(ptype)
	p.Status = models.PreviewStatus(status)
	if fetchedAt.Valid {
		p.FetchedAt = &fetchedAt.Time
	}
	return p, nil
}
