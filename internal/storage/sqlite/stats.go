package sqlite

import (
	"context"

	"github.com/draftboard/draftboard/internal/storage"
)

// Stats returns store-wide counts.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var st storage.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM diagrams),
			(SELECT COUNT(*) FROM diagram_versions),
			(SELECT COUNT(DISTINCT project) FROM diagrams WHERE project != '')
	`).Scan(&st.DiagramCount, &st.VersionCount, &st.ProjectCount)
	if err != nil {
		return nil, wrapDBError("stats", err)
	}
	return &st, nil
}

// DiagramIDs returns the set of all diagram ids. Used by the thumbnail
// orphan reaper, which only needs ids, not full rows.
func (s *Store) DiagramIDs(ctx context.Context) (map[string]struct{}, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM diagrams`)
	if err != nil {
		return nil, wrapDBError("list diagram ids", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("list diagram ids", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}
