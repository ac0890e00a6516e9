// Package sqlite implements the storage interface using SQLite.
//
// Layout:
//   - store.go: Store struct, New() constructor, pragmas, WASM cache, Close
//   - schema.go: schema and index definitions, FTS table and triggers
//   - migrations.go: versioned schema migrations
//   - diagrams.go: diagram CRUD (Create, Get, Update, Transform, Delete, Fork)
//   - list.go: List, ListPaginated, ListForUser
//   - versions.go: history operations
//   - shares.go: ownership and sharing
//   - stats.go: statistics
//   - transaction.go: BEGIN IMMEDIATE helper with busy retry
//   - ids.go: short id generation
//   - errors.go: error wrapping helpers
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/draftboard/draftboard/internal/quota"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
)

// SyncNotifier receives post-commit notifications for diagram mutations that
// happened outside the collaboration hub, so rooms can emit sync frames.
type SyncNotifier interface {
	BroadcastSync(diagramID string, s *spec.DiagramSpec, version int64)
}

// ThumbnailDeleter is the slice of the thumbnail store Delete needs.
// Thumbnail removal is best-effort and happens after the delete transaction
// commits; failures are left to the orphan reaper.
type ThumbnailDeleter interface {
	Delete(id string) error
}

// Store implements storage.Storage backed by an embedded SQLite database.
type Store struct {
	db     *sql.DB
	dbPath string
	limits quota.Limits
	closed atomic.Bool

	notifier SyncNotifier
	thumbs   ThumbnailDeleter
}

var _ storage.Storage = (*Store)(nil)

// setupWASMCache configures WASM compilation caching to cut SQLite startup
// time. Falls back to an in-memory cache when the cache dir is unavailable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "draftd", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (creating if needed) the diagram database at path and applies
// schema plus pending migrations. Pass ":memory:" for an ephemeral store.
func New(ctx context.Context, path string, limits quota.Limits) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		// WAL does not work for in-memory databases; use DELETE journaling
		// and a shared cache so pooled connections see the same data.
		connStr = "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path +
			"?_pragma=journal_mode(WAL)" +
			"&_pragma=synchronous(NORMAL)" +
			"&_pragma=cache_size(-65536)" + // 64 MiB page cache
			"&_pragma=foreign_keys(ON)" +
			"&_pragma=busy_timeout(30000)" +
			"&_time_format=sqlite"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per-connection; force a single connection
		// so every query sees the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports 1 writer + N readers; bound the pool so write-lock
		// contention does not pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
	}

	s := &Store{db: db, dbPath: path, limits: limits}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SetSyncNotifier wires the collaboration hub bridge. Pass nil to disable.
func (s *Store) SetSyncNotifier(n SyncNotifier) {
	s.notifier = n
}

// SetThumbnailDeleter wires best-effort thumbnail cleanup into Delete.
func (s *Store) SetThumbnailDeleter(t ThumbnailDeleter) {
	s.thumbs = t
}

// Ping verifies the database connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) notifySync(diagramID string, sp *spec.DiagramSpec, version int64) {
	if s.notifier != nil {
		s.notifier.BroadcastSync(diagramID, sp, version)
	}
}
