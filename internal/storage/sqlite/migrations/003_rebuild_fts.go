package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateRebuildFTS rebuilds the diagrams_fts index from its content table.
// Needed once for databases whose index predates the trigram tokenizer;
// harmless (if slow) elsewhere.
func MigrateRebuildFTS(db *sql.DB) error {
	if _, err := db.Exec(`INSERT INTO diagrams_fts(diagrams_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("failed to rebuild fts index: %w", err)
	}
	return nil
}
