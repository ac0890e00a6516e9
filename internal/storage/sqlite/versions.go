package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
)

const versionColumns = `id, diagram_id, version, spec, message, created_at`

func scanVersion(row rowScanner) (*storage.DiagramVersion, error) {
	var (
		v         storage.DiagramVersion
		specJSON  string
		message   sql.NullString
		createdAt string
	)
	if err := row.Scan(&v.ID, &v.DiagramID, &v.Version, &specJSON, &message, &createdAt); err != nil {
		return nil, err
	}
	sp, err := spec.ParseLenient([]byte(specJSON))
	if err != nil {
		return nil, fmt.Errorf("corrupt spec for version %s: %w", v.ID, err)
	}
	if !sp.Valid {
		debug.Logf("version %s: spec has %d validation issues (legacy row)", v.ID, len(sp.Issues))
	}
	v.Spec = sp
	v.Message = message.String
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}

// CreateVersion snapshots the given spec as the diagram's next history entry
// and aligns the diagram's version counter with it. Returns nil when the
// diagram does not exist.
func (s *Store) CreateVersion(ctx context.Context, diagramID string, sp *spec.DiagramSpec, message string) (*storage.DiagramVersion, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(message) > 500 {
		return nil, fmt.Errorf("message must be at most 500 characters")
	}
	serialized, err := s.validateForWrite(sp)
	if err != nil {
		return nil, err
	}

	now := formatTime(time.Now())
	var created *storage.DiagramVersion
	err = s.runInTx(ctx, func(conn *sql.Conn) error {
		var exists int
		err := conn.QueryRowContext(ctx,
			`SELECT 1 FROM diagrams WHERE id = ?`, diagramID).Scan(&exists)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return wrapDBError("check diagram", err)
		}

		next, err := appendVersion(ctx, conn, diagramID, string(serialized), message, now)
		if err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx,
			`UPDATE diagrams SET version = ?, updated_at = ? WHERE id = ?`,
			next, now, diagramID); err != nil {
			return wrapDBError("align diagram version", err)
		}

		row := conn.QueryRowContext(ctx,
			`SELECT `+versionColumns+` FROM diagram_versions WHERE diagram_id = ? AND version = ?`,
			diagramID, next)
		created, err = scanVersion(row)
		if err != nil {
			return wrapDBError("read created version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetVersions returns the full history for a diagram, newest first.
func (s *Store) GetVersions(ctx context.Context, diagramID string) ([]*storage.DiagramVersion, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions WHERE diagram_id = ? ORDER BY version DESC`,
		diagramID)
	if err != nil {
		return nil, wrapDBError("get versions", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.DiagramVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, wrapDBError("scan version", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersionsPaginated returns one page of history, newest first, plus the
// total entry count.
func (s *Store) GetVersionsPaginated(ctx context.Context, diagramID string, limit, offset int) ([]*storage.DiagramVersion, int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diagram_versions WHERE diagram_id = ?`, diagramID).Scan(&total); err != nil {
		return nil, 0, wrapDBError("count versions", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions WHERE diagram_id = ?
		 ORDER BY version DESC LIMIT ? OFFSET ?`,
		diagramID, limit, offset)
	if err != nil {
		return nil, 0, wrapDBError("get versions", err)
	}
	defer func() { _ = rows.Close() }()

	out := []*storage.DiagramVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, 0, wrapDBError("scan version", err)
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

// GetVersionsMetadata returns history entries without their spec payloads,
// for timeline listings.
func (s *Store) GetVersionsMetadata(ctx context.Context, diagramID string) ([]*storage.VersionMeta, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, diagram_id, version, message, created_at
		 FROM diagram_versions WHERE diagram_id = ? ORDER BY version DESC`,
		diagramID)
	if err != nil {
		return nil, wrapDBError("get version metadata", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.VersionMeta
	for rows.Next() {
		var (
			m         storage.VersionMeta
			message   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.DiagramID, &m.Version, &message, &createdAt); err != nil {
			return nil, wrapDBError("scan version metadata", err)
		}
		m.Message = message.String
		m.CreatedAt = parseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// GetVersion returns one history entry, or nil when it does not exist.
func (s *Store) GetVersion(ctx context.Context, diagramID string, version int64) (*storage.DiagramVersion, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions WHERE diagram_id = ? AND version = ?`,
		diagramID, version)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("get version", err)
	}
	return v, nil
}

// GetLatestVersion returns the newest history entry for a diagram, or nil.
func (s *Store) GetLatestVersion(ctx context.Context, diagramID string) (*storage.DiagramVersion, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM diagram_versions WHERE diagram_id = ?
		 ORDER BY version DESC LIMIT 1`,
		diagramID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("get latest version", err)
	}
	return v, nil
}

// RestoreVersion overwrites the diagram's current spec with the snapshot at
// the given version and appends a new history row recording the restore.
// Returns nil when the diagram or the version does not exist.
func (s *Store) RestoreVersion(ctx context.Context, diagramID string, version int64) (*storage.Diagram, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	now := formatTime(time.Now())
	var restored *storage.Diagram
	var newVersion int64

	err := s.runInTx(ctx, func(conn *sql.Conn) error {
		var specJSON string
		err := conn.QueryRowContext(ctx,
			`SELECT spec FROM diagram_versions WHERE diagram_id = ? AND version = ?`,
			diagramID, version).Scan(&specJSON)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return wrapDBError("read version snapshot", err)
		}

		res, err := conn.ExecContext(ctx, `
			UPDATE diagrams SET spec = ?, updated_at = ?, version = version + 1
			WHERE id = ?`,
			specJSON, now, diagramID)
		if err != nil {
			return wrapDBError("restore diagram", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return wrapDBError("restore diagram", err)
		}
		if affected == 0 {
			return nil
		}

		msg := fmt.Sprintf("Restored to version %d", version)
		newVersion, err = appendVersion(ctx, conn, diagramID, specJSON, msg, now)
		if err != nil {
			return err
		}

		row := conn.QueryRowContext(ctx,
			`SELECT `+diagramColumns+` FROM diagrams WHERE id = ?`, diagramID)
		restored, err = scanDiagram(row)
		if err != nil {
			return wrapDBError("read restored diagram", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if restored != nil {
		s.notifySync(diagramID, restored.Spec, newVersion)
	}
	return restored, nil
}
