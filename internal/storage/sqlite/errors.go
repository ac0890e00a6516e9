package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/draftboard/draftboard/internal/storage"
)

// wrapDBError wraps a database error with operation context, converting
// sql.ErrNoRows to storage.ErrNotFound for consistent handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isNotFound checks if an error is or wraps storage.ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
