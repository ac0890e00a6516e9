package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftboard/draftboard/internal/storage"
)

// minFTSSearchLen is the minimum query length for the trigram index. The
// trigram tokenizer cannot match shorter substrings, so shorter queries fall
// back to LIKE.
const minFTSSearchLen = 3

// List returns diagrams, optionally scoped to a project, newest first.
// Legacy helper; prefer ListPaginated.
func (s *Store) List(ctx context.Context, project string) ([]*storage.Diagram, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	query := `SELECT ` + diagramColumns + ` FROM diagrams`
	args := []interface{}{}
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list diagrams", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*storage.Diagram
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, wrapDBError("scan diagram", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ftsQuote builds an FTS5 phrase query scoped to the name column. The phrase
// form makes the trigram tokenizer do case-insensitive substring matching.
func ftsQuote(search string) string {
	escaped := strings.ReplaceAll(search, `"`, `""`)
	return `name : "` + escaped + `"`
}

// sortColumn maps an API sort key to its indexed column expression.
func sortColumn(by storage.SortBy) string {
	switch by {
	case storage.SortByCreatedAt:
		return "created_at"
	case storage.SortByName:
		return "name COLLATE NOCASE"
	default:
		return "updated_at"
	}
}

// ListPaginated filters, sorts and paginates diagrams with a single WHERE
// clause shared by the page query and the COUNT(*).
func (s *Store) ListPaginated(ctx context.Context, opts storage.ListOptions) (*storage.Page, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	whereClauses := []string{}
	args := []interface{}{}

	if opts.Project != "" {
		whereClauses = append(whereClauses, "project = ?")
		args = append(args, opts.Project)
	}

	if len(opts.Types) > 0 {
		// Unknown types cannot match any row; short-circuit to an empty
		// page rather than querying with a bogus enum value.
		placeholders := make([]string, 0, len(opts.Types))
		for _, t := range opts.Types {
			if !t.IsValid() {
				return &storage.Page{Diagrams: []*storage.Diagram{}, Total: 0}, nil
			}
			placeholders = append(placeholders, "?")
			args = append(args, string(t))
		}
		whereClauses = append(whereClauses,
			fmt.Sprintf("json_extract(spec, '$.type') IN (%s)", strings.Join(placeholders, ",")))
	}

	if opts.Search != "" {
		if len(opts.Search) >= minFTSSearchLen {
			whereClauses = append(whereClauses,
				"rowid IN (SELECT rowid FROM diagrams_fts WHERE diagrams_fts MATCH ?)")
			args = append(args, ftsQuote(opts.Search))
		} else {
			whereClauses = append(whereClauses, "name LIKE ? COLLATE NOCASE")
			args = append(args, "%"+opts.Search+"%")
		}
	}

	if opts.CreatedAfter != nil {
		whereClauses = append(whereClauses, "created_at > ?")
		args = append(args, formatTime(*opts.CreatedAfter))
	}
	if opts.CreatedBefore != nil {
		whereClauses = append(whereClauses, "created_at < ?")
		args = append(args, formatTime(*opts.CreatedBefore))
	}
	if opts.UpdatedAfter != nil {
		whereClauses = append(whereClauses, "updated_at > ?")
		args = append(args, formatTime(*opts.UpdatedAfter))
	}
	if opts.UpdatedBefore != nil {
		whereClauses = append(whereClauses, "updated_at < ?")
		args = append(args, formatTime(*opts.UpdatedBefore))
	}

	where := ""
	if len(whereClauses) > 0 {
		where = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diagrams`+where, args...).Scan(&total); err != nil {
		return nil, wrapDBError("count diagrams", err)
	}

	order := "DESC"
	if opts.SortOrder == storage.SortAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM diagrams%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		diagramColumns, where, sortColumn(opts.SortBy), order)
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, wrapDBError("list diagrams", err)
	}
	defer func() { _ = rows.Close() }()

	diagrams := []*storage.Diagram{}
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, wrapDBError("scan diagram", err)
		}
		diagrams = append(diagrams, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list diagrams", err)
	}
	return &storage.Page{Diagrams: diagrams, Total: total}, nil
}

// ListForUser returns diagrams the user may access: owned, legacy
// (ownerless), public, or shared with them. Anonymous callers (empty
// userID) see only public and legacy rows.
//
// The shares membership test uses GLOB against the serialized shares JSON.
// The strict userID charset excludes every GLOB metacharacter, so the
// pattern cannot be escaped by input.
func (s *Store) ListForUser(ctx context.Context, userID string, opts storage.UserListOptions) (*storage.Page, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if userID != "" && !storage.ValidUserID(userID) {
		return nil, fmt.Errorf("invalid user id")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var access string
	args := []interface{}{}
	if userID == "" {
		access = "(owner_id IS NULL OR is_public = 1)"
	} else {
		access = "(owner_id = ? OR owner_id IS NULL OR is_public = 1 OR shares GLOB ?)"
		args = append(args, userID, `*"userId":"`+userID+`"*`)
	}

	where := " WHERE " + access
	if opts.Project != "" {
		where += " AND project = ?"
		args = append(args, opts.Project)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM diagrams`+where, args...).Scan(&total); err != nil {
		return nil, wrapDBError("count user diagrams", err)
	}

	query := `SELECT ` + diagramColumns + ` FROM diagrams` + where +
		` ORDER BY updated_at DESC LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), limit, offset)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, wrapDBError("list user diagrams", err)
	}
	defer func() { _ = rows.Close() }()

	diagrams := []*storage.Diagram{}
	for rows.Next() {
		d, err := scanDiagram(rows)
		if err != nil {
			return nil, wrapDBError("scan diagram", err)
		}
		diagrams = append(diagrams, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list user diagrams", err)
	}
	return &storage.Page{Diagrams: diagrams, Total: total}, nil
}
