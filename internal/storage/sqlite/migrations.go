package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/storage/sqlite/migrations"
)

// migration is one versioned schema change. Migrations run in order inside
// the schema_version bookkeeping; each is idempotent so a crash between
// apply and record is safe.
type migration struct {
	version int
	name    string
	apply   func(db *sql.DB) error
}

// allMigrations is the ordered registry. Version 1 is the baseline schema
// created by initSchema.
var allMigrations = []migration{
	{2, "thumbnail_url column", migrations.MigrateThumbnailURLColumn},
	{3, "rebuild fts index", migrations.MigrateRebuildFTS},
}

func (s *Store) runMigrations(ctx context.Context) error {
	var current sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_version`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !current.Valid {
		// Fresh database: baseline is the full current schema.
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (1, ?)`,
			formatTime(time.Now())); err != nil {
			return fmt.Errorf("failed to record baseline schema version: %w", err)
		}
		current.Int64 = 1
	}

	for _, m := range allMigrations {
		if int64(m.version) <= current.Int64 {
			continue
		}
		debug.Logf("applying migration %d: %s", m.version, m.name)
		if err := m.apply(s.db); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
			m.version, formatTime(time.Now())); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}
	return nil
}
