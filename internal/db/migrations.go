package db

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one forward-only schema step.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "login_attempts", `
CREATE TABLE IF NOT EXISTS login_attempts (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    port INTEGER NOT NULL DEFAULT 0,
    login_url TEXT,
    token_fingerprint TEXT,
    error TEXT,
    started_at TEXT,
    ended_at TEXT NOT NULL,
    duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_login_attempts_ended ON login_attempts(ended_at);
`},
	{2, "login_attempts_status_index", `CREATE INDEX IF NOT EXISTS idx_login_attempts_status ON login_attempts(status);`},
}

// Migrate brings the schema up to date. All pending steps commit together
// or not at all.
func Migrate(ctx context.Context, conn *sql.DB) error {
	if conn == nil {
		return fmt.Errorf("migrate: nil connection")
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
)`); err != nil {
		return fmt.Errorf("migrate: schema_version: %w", err)
	}

	current, err := schemaVersion(ctx, tx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migrate %d %s: %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("migrate %d %s: record: %w", m.version, m.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration, 0 for a new file.
func SchemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	if conn == nil {
		return 0, fmt.Errorf("schema version: nil connection")
	}
	return schemaVersion(ctx, conn)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func schemaVersion(ctx context.Context, q rowQuerier) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}
