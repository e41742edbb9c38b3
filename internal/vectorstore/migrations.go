package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Metadata keys stored in the _metadata table.
const (
	metaDimension     = "dimension"
	metaIsHybrid      = "isHybrid"
	metaCreatedAt     = "createdAt"
	metaDocumentCount = "documentCount"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    relative_path TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    file_extension TEXT,
    metadata TEXT,
    dense_vector BLOB NOT NULL,
    sparse_indices TEXT,
    sparse_values TEXT
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(relative_path);
CREATE INDEX IF NOT EXISTS idx_documents_extension ON documents(file_extension);

CREATE TABLE IF NOT EXISTS _metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// applySchema creates the collection tables when absent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// openDatabase opens a collection database with the settings the
// single-writer access pattern wants.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL lets readers proceed while an index run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

func setMeta(ctx context.Context, db *sql.DB, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO _metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func getMeta(ctx context.Context, db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM _metadata WHERE key = ?`, key).Scan(&value)
	return value, err
}
