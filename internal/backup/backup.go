// Package backup creates rolling database snapshots and optionally
// syncs them off-site with rclone. Sync is fire-and-forget: failures
// are logged and reported as status, never propagated to the request
// that scheduled them.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/mediastash/tagger/internal/store"
)

// SnapshotName is the rolling snapshot filename inside the backup dir.
const SnapshotName = "latest.db"

// SyncState describes the most recent off-site sync attempt.
type SyncState string

const (
	SyncNever   SyncState = "never"
	SyncRunning SyncState = "running"
	SyncOK      SyncState = "ok"
	SyncFailed  SyncState = "failed"
)

// SyncStatus is the last sync outcome, safe to expose to callers.
type SyncStatus struct {
	State SyncState  `json:"state"`
	At    *time.Time `json:"at,omitempty"`
	Error string     `json:"error,omitempty"`
}

// Manager owns the snapshot directory and the sync state.
type Manager struct {
	store  store.Store
	dir    string
	remote string // rclone destination, e.g. "gdrive:tagger-backups/latest.db"; empty disables sync

	mu   sync.Mutex
	last SyncStatus
}

// New creates a backup manager. remote may be empty to disable
// off-site sync.
func New(s store.Store, dir, remote string) *Manager {
	return &Manager{
		store:  s,
		dir:    dir,
		remote: remote,
		last:   SyncStatus{State: SyncNever},
	}
}

// Snapshot writes a consistent rolling snapshot and returns its path.
func (m *Manager) Snapshot(ctx context.Context) (string, error) {
	path := filepath.Join(m.dir, SnapshotName)
	if err := m.store.Snapshot(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}

// EnqueueSync pushes a snapshot off-site in the background. A no-op
// when no remote is configured.
func (m *Manager) EnqueueSync(snapshotPath string) {
	if m.remote == "" {
		return
	}

	m.setStatus(SyncStatus{State: SyncRunning})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		m.sync(ctx, snapshotPath)
	}()
}

// Sync pushes a snapshot off-site, blocking until rclone finishes.
// Used by the CLI, which cannot outlive a background goroutine.
func (m *Manager) Sync(ctx context.Context, snapshotPath string) error {
	if m.remote == "" {
		return nil
	}
	m.setStatus(SyncStatus{State: SyncRunning})
	return m.sync(ctx, snapshotPath)
}

func (m *Manager) sync(ctx context.Context, snapshotPath string) error {
	cmd := exec.CommandContext(ctx, "rclone", "copyto", snapshotPath, m.remote, "--checksum")
	out, err := cmd.CombinedOutput()
	now := time.Now().UTC()
	if err != nil {
		slog.Error("backup sync failed", "remote", m.remote, "err", err, "output", string(out))
		m.setStatus(SyncStatus{State: SyncFailed, At: &now, Error: err.Error()})
		return fmt.Errorf("rclone copyto: %w", err)
	}
	slog.Info("backup sync completed", "remote", m.remote)
	m.setStatus(SyncStatus{State: SyncOK, At: &now})
	return nil
}

// LastSync returns the most recent sync outcome.
func (m *Manager) LastSync() SyncStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Manager) setStatus(s SyncStatus) {
	m.mu.Lock()
	m.last = s
	m.mu.Unlock()
}
