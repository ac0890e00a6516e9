package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftboard/draftboard/internal/storage"
)

// UpdateOwner sets the diagram's owner. An empty ownerID clears ownership
// (legacy/ownerless row). Returns false when the id is invalid or the
// diagram does not exist; invalid input never touches state.
func (s *Store) UpdateOwner(ctx context.Context, id, ownerID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if ownerID != "" && !storage.ValidUserID(ownerID) {
		return false, nil
	}
	var owner interface{}
	if ownerID != "" {
		owner = ownerID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE diagrams SET owner_id = ?, updated_at = ? WHERE id = ?`,
		owner, formatTime(time.Now()), id)
	if err != nil {
		return false, wrapDBError("update owner", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("update owner", err)
	}
	return affected > 0, nil
}

// SetPublic toggles the diagram's public flag.
func (s *Store) SetPublic(ctx context.Context, id string, public bool) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	val := 0
	if public {
		val = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE diagrams SET is_public = ?, updated_at = ? WHERE id = ?`,
		val, formatTime(time.Now()), id)
	if err != nil {
		return false, wrapDBError("set public", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrapDBError("set public", err)
	}
	return affected > 0, nil
}

// UpdateShares replaces the diagram's share list atomically: if any entry
// fails validation, nothing is persisted.
func (s *Store) UpdateShares(ctx context.Context, id string, shares []storage.Share) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	seen := make(map[string]struct{}, len(shares))
	for _, sh := range shares {
		if !storage.ValidUserID(sh.UserID) || !sh.Permission.IsValid() {
			return false, nil
		}
		if _, dup := seen[sh.UserID]; dup {
			return false, nil
		}
		seen[sh.UserID] = struct{}{}
	}
	return s.writeShares(ctx, id, shares)
}

// AddShare grants (or re-grants with a new permission) access for one user.
// A user appears at most once in the share list.
func (s *Store) AddShare(ctx context.Context, id, userID string, permission storage.SharePermission) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if !storage.ValidUserID(userID) || !permission.IsValid() {
		return false, nil
	}
	return s.mutateShares(ctx, id, func(shares []storage.Share) []storage.Share {
		for i := range shares {
			if shares[i].UserID == userID {
				shares[i].Permission = permission
				return shares
			}
		}
		return append(shares, storage.Share{UserID: userID, Permission: permission})
	})
}

// RemoveShare revokes access for one user. Removing a non-present user is a
// no-op that still reports success.
func (s *Store) RemoveShare(ctx context.Context, id, userID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if !storage.ValidUserID(userID) {
		return false, nil
	}
	return s.mutateShares(ctx, id, func(shares []storage.Share) []storage.Share {
		out := shares[:0]
		for _, sh := range shares {
			if sh.UserID != userID {
				out = append(out, sh)
			}
		}
		return out
	})
}

// mutateShares applies fn to the diagram's share list inside a write
// transaction. Returns false when the diagram does not exist.
func (s *Store) mutateShares(ctx context.Context, id string, fn func([]storage.Share) []storage.Share) (bool, error) {
	found := false
	err := s.runInTx(ctx, func(conn *sql.Conn) error {
		var sharesJSON string
		err := conn.QueryRowContext(ctx,
			`SELECT shares FROM diagrams WHERE id = ?`, id).Scan(&sharesJSON)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return wrapDBError("read shares", err)
		}

		var shares []storage.Share
		if err := json.Unmarshal([]byte(sharesJSON), &shares); err != nil {
			shares = nil // corrupt legacy column; rebuild from scratch
		}
		updated, err := json.Marshal(fn(shares))
		if err != nil {
			return fmt.Errorf("failed to serialize shares: %w", err)
		}

		if _, err := conn.ExecContext(ctx,
			`UPDATE diagrams SET shares = ?, updated_at = ? WHERE id = ?`,
			string(updated), formatTime(time.Now()), id); err != nil {
			return wrapDBError("write shares", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (s *Store) writeShares(ctx context.Context, id string, shares []storage.Share) (bool, error) {
	return s.mutateShares(ctx, id, func([]storage.Share) []storage.Share {
		return shares
	})
}
