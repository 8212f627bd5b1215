package sqlite

import "database/sql"

// schema sets up the document tables. Sheets and structure versions are
// stored as JSON documents; the scalar columns exist for lookups and for the
// one-in-progress-sheet-per-association constraint.
// IMPORTANT: structures must be created BEFORE sheets due to foreign key constraint.
const schema = `
CREATE TABLE IF NOT EXISTS structures (
    id TEXT PRIMARY KEY,
    association_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    document TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sheets (
    id TEXT PRIMARY KEY,
    association_id TEXT NOT NULL,
    period TEXT NOT NULL,
    status TEXT NOT NULL,
    structure_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    document TEXT NOT NULL,
    FOREIGN KEY (structure_id) REFERENCES structures(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sheets_one_in_progress
    ON sheets(association_id) WHERE status = 'in_progress';
CREATE INDEX IF NOT EXISTS idx_sheets_association_status ON sheets(association_id, status, created_at);
CREATE INDEX IF NOT EXISTS idx_structures_association_id ON structures(association_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
