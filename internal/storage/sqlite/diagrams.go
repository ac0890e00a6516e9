package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/spec"
	"github.com/draftboard/draftboard/internal/storage"
)

const diagramColumns = `id, name, project, spec, thumbnail_url, version, owner_id, is_public, shares, created_at, updated_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDiagram decodes one diagram row. Specs are lenient-parsed so legacy
// rows that predate current validation rules stay readable; issues are
// logged, never fatal.
func scanDiagram(row rowScanner) (*storage.Diagram, error) {
	var (
		d            storage.Diagram
		specJSON     string
		thumbnailURL sql.NullString
		ownerID      sql.NullString
		isPublic     int
		sharesJSON   string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&d.ID, &d.Name, &d.Project, &specJSON, &thumbnailURL,
		&d.Version, &ownerID, &isPublic, &sharesJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sp, err := spec.ParseLenient([]byte(specJSON))
	if err != nil {
		return nil, fmt.Errorf("corrupt spec for diagram %s: %w", d.ID, err)
	}
	if !sp.Valid {
		debug.Logf("diagram %s: spec has %d validation issues (legacy row)", d.ID, len(sp.Issues))
	}
	d.Spec = sp
	d.ThumbnailURL = thumbnailURL.String
	d.OwnerID = ownerID.String
	d.IsPublic = isPublic != 0
	if err := json.Unmarshal([]byte(sharesJSON), &d.Shares); err != nil {
		debug.Logf("diagram %s: corrupt shares column: %v", d.ID, err)
		d.Shares = nil
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// validateForWrite runs strict validation and the quota checks every write
// into the store must pass. Returns the canonical serialized form.
func (s *Store) validateForWrite(sp *spec.DiagramSpec) ([]byte, error) {
	if err := spec.Validate(sp); err != nil {
		return nil, err
	}
	serialized, err := sp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize spec: %w", err)
	}
	if err := s.limits.CheckSpec(sp, serialized); err != nil {
		return nil, err
	}
	return serialized, nil
}

// Create inserts a new diagram at version 1 together with its initial
// history row.
func (s *Store) Create(ctx context.Context, name, project string, sp *spec.DiagramSpec, opts storage.CreateOptions) (*storage.Diagram, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(name) == 0 || len(name) > 500 {
		return nil, fmt.Errorf("name must be 1-500 characters")
	}
	if len(project) > 200 {
		return nil, fmt.Errorf("project must be at most 200 characters")
	}
	serialized, err := s.validateForWrite(sp)
	if err != nil {
		return nil, err
	}

	if opts.OwnerID != "" {
		if !storage.ValidUserID(opts.OwnerID) {
			return nil, fmt.Errorf("invalid owner id")
		}
		var owned int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM diagrams WHERE owner_id = ?`, opts.OwnerID).Scan(&owned)
		if err != nil {
			return nil, wrapDBError("count owned diagrams", err)
		}
		if err := s.limits.CheckOwnerCount(opts.OwnerID, owned); err != nil {
			return nil, err
		}
	}

	id := newID()
	now := formatTime(time.Now())
	var ownerID interface{}
	if opts.OwnerID != "" {
		ownerID = opts.OwnerID
	}
	isPublic := 0
	if opts.IsPublic {
		isPublic = 1
	}

	err = s.runInTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO diagrams (id, name, project, spec, version, owner_id, is_public, shares, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, ?, ?, '[]', ?, ?)`,
			id, name, project, string(serialized), ownerID, isPublic, now, now)
		if err != nil {
			return wrapDBError("insert diagram", err)
		}
		_, err = conn.ExecContext(ctx, `
			INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
			VALUES (?, ?, 1, ?, 'Initial version', ?)`,
			newID(), id, string(serialized), now)
		if err != nil {
			return wrapDBError("insert initial version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get returns the diagram with the given id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*storage.Diagram, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+diagramColumns+` FROM diagrams WHERE id = ?`, id)
	d, err := scanDiagram(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapDBError("get diagram", err)
	}
	return d, nil
}

// Update replaces the diagram's spec, bumping its version and appending a
// history row in the same transaction.
//
// When baseVersion is non-nil the update is optimistic: a stale baseVersion
// produces a Conflict result carrying the current version, without touching
// the row. A nil result means the diagram does not exist.
func (s *Store) Update(ctx context.Context, id string, sp *spec.DiagramSpec, message string, baseVersion *int64) (*storage.UpdateResult, error) {
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
	var result *storage.UpdateResult
	var newVersion int64

	err = s.runInTx(ctx, func(conn *sql.Conn) error {
		var res sql.Result
		var err error
		if baseVersion != nil {
			res, err = conn.ExecContext(ctx, `
				UPDATE diagrams SET spec = ?, updated_at = ?, version = version + 1
				WHERE id = ? AND version = ?`,
				string(serialized), now, id, *baseVersion)
		} else {
			res, err = conn.ExecContext(ctx, `
				UPDATE diagrams SET spec = ?, updated_at = ?, version = version + 1
				WHERE id = ?`,
				string(serialized), now, id)
		}
		if err != nil {
			return wrapDBError("update diagram", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return wrapDBError("update diagram", err)
		}
		if affected == 0 {
			var current int64
			err := conn.QueryRowContext(ctx,
				`SELECT version FROM diagrams WHERE id = ?`, id).Scan(&current)
			if err == sql.ErrNoRows {
				result = nil // diagram gone
				return nil
			}
			if err != nil {
				return wrapDBError("read current version", err)
			}
			result = &storage.UpdateResult{Conflict: true, CurrentVersion: current}
			return nil
		}

		// History row: MAX(version)+1 under the same write lock, which
		// keeps (diagram_id, version) unique even when two writers win
		// serially.
		newVersion, err = appendVersion(ctx, conn, id, string(serialized), message, now)
		if err != nil {
			return err
		}

		row := conn.QueryRowContext(ctx,
			`SELECT `+diagramColumns+` FROM diagrams WHERE id = ?`, id)
		d, err := scanDiagram(row)
		if err != nil {
			return wrapDBError("read updated diagram", err)
		}
		result = &storage.UpdateResult{Diagram: d}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result != nil && result.Diagram != nil {
		s.notifySync(id, result.Diagram.Spec, newVersion)
	}
	return result, nil
}

// appendVersion inserts the next history row for a diagram. Must run inside
// a write transaction.
func appendVersion(ctx context.Context, conn *sql.Conn, diagramID, serialized, message, now string) (int64, error) {
	var maxVersion sql.NullInt64
	err := conn.QueryRowContext(ctx,
		`SELECT MAX(version) FROM diagram_versions WHERE diagram_id = ?`, diagramID).Scan(&maxVersion)
	if err != nil {
		return 0, wrapDBError("read max version", err)
	}
	next := maxVersion.Int64 + 1

	var msg interface{}
	if message != "" {
		msg = message
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		newID(), diagramID, next, serialized, msg, now)
	if err != nil {
		return 0, wrapDBError("insert version", err)
	}
	return next, nil
}

// ForceUpdate updates unconditionally, bypassing the optimistic lock.
// Admin-scoped.
func (s *Store) ForceUpdate(ctx context.Context, id string, sp *spec.DiagramSpec, message string) (*storage.Diagram, error) {
	res, err := s.Update(ctx, id, sp, message, nil)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Diagram, nil
}

// Transform is the safe server-side mutation primitive: read-modify-write
// with a bounded optimistic retry loop. Returns nil when the diagram does
// not exist, and *storage.RetryExhaustedError when every attempt lost the
// version race.
func (s *Store) Transform(ctx context.Context, id string, fn storage.TransformFunc, message string, maxRetries int) (*storage.Diagram, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	for attempt := 1; attempt <= maxRetries; attempt++ {
		d, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if d == nil {
			return nil, nil
		}

		next, err := fn(d.Spec)
		if err != nil {
			return nil, err
		}

		base := d.Version
		res, err := s.Update(ctx, id, next, message, &base)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, nil
		}
		if res.Conflict {
			debug.Logf("transform %s: version conflict on attempt %d (current %d)", id, attempt, res.CurrentVersion)
			continue
		}
		return res.Diagram, nil
	}
	return nil, &storage.RetryExhaustedError{Attempts: maxRetries}
}

// Delete removes the diagram, its history and its agent runs in one
// transaction. Thumbnail removal is attempted after commit and only logged
// on failure; the orphan reaper is the backstop.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	deleted := false
	err := s.runInTx(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM diagram_versions WHERE diagram_id = ?`, id); err != nil {
			return wrapDBError("delete versions", err)
		}
		if _, err := conn.ExecContext(ctx,
			`DELETE FROM agent_runs WHERE diagram_id = ?`, id); err != nil {
			return wrapDBError("delete agent runs", err)
		}
		res, err := conn.ExecContext(ctx, `DELETE FROM diagrams WHERE id = ?`, id)
		if err != nil {
			return wrapDBError("delete diagram", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return wrapDBError("delete diagram", err)
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted && s.thumbs != nil {
		if terr := s.thumbs.Delete(id); terr != nil {
			debug.Logf("delete %s: thumbnail cleanup failed (reaper will collect): %v", id, terr)
		}
	}
	return deleted, nil
}

// Fork copies a diagram's current spec into a new diagram at version 1.
func (s *Store) Fork(ctx context.Context, id, newName, project string) (*storage.Diagram, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(newName) == 0 || len(newName) > 500 {
		return nil, fmt.Errorf("name must be 1-500 characters")
	}

	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, nil
	}

	serialized, err := src.Spec.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize forked spec: %w", err)
	}
	if project == "" {
		project = src.Project
	}

	forkID := newID()
	now := formatTime(time.Now())
	forkMsg := fmt.Sprintf("Forked from %s (%s)", src.Name, src.ID)

	err = s.runInTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO diagrams (id, name, project, spec, version, is_public, shares, created_at, updated_at)
			VALUES (?, ?, ?, ?, 1, 0, '[]', ?, ?)`,
			forkID, newName, project, string(serialized), now, now)
		if err != nil {
			return wrapDBError("insert fork", err)
		}
		_, err = conn.ExecContext(ctx, `
			INSERT INTO diagram_versions (id, diagram_id, version, spec, message, created_at)
			VALUES (?, ?, 1, ?, ?, ?)`,
			newID(), forkID, string(serialized), forkMsg, now)
		if err != nil {
			return wrapDBError("insert fork version", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, forkID)
}
