// Package migrations holds versioned schema changes for the diagram store.
// Each migration is an idempotent function over *sql.DB; ordering and
// bookkeeping live in the parent package.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
)

// MigrateThumbnailURLColumn adds the thumbnail_url column to databases
// created before it existed.
func MigrateThumbnailURLColumn(db *sql.DB) (retErr error) {
	var columnExists bool
	rows, err := db.Query("PRAGMA table_info(diagrams)")
	if err != nil {
		return fmt.Errorf("failed to check schema: %w", err)
	}
	defer func() {
		if rows != nil {
			if closeErr := rows.Close(); closeErr != nil {
				retErr = errors.Join(retErr, fmt.Errorf("failed to close schema rows: %w", closeErr))
			}
		}
	}()

	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == "thumbnail_url" {
			columnExists = true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error reading column info: %w", err)
	}

	// Close rows before executing statements to avoid deadlocking a
	// single-connection pool.
	if err := rows.Close(); err != nil {
		return fmt.Errorf("failed to close schema rows: %w", err)
	}
	rows = nil

	if !columnExists {
		if _, err := db.Exec(`ALTER TABLE diagrams ADD COLUMN thumbnail_url TEXT`); err != nil {
			return fmt.Errorf("failed to add thumbnail_url column: %w", err)
		}
	}
	return nil
}
