package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/tariff"
)

// Migration is one versioned schema change. Migrations are append-only.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

var migrations = []Migration{
	{
		Version:     1,
		Name:        "create_box_tariffs",
		Description: "Box tariffs keyed by date and warehouse",
		SQL: `
		CREATE TABLE IF NOT EXISTS box_tariffs (
			date TEXT NOT NULL,
			warehouse TEXT NOT NULL,
			box_delivery_base NUMERIC NOT NULL DEFAULT 0,
			box_delivery_coef_expr NUMERIC NOT NULL DEFAULT 0,
			box_delivery_liter NUMERIC NOT NULL DEFAULT 0,
			box_storage_base NUMERIC NOT NULL DEFAULT 0,
			box_storage_coef_expr NUMERIC NOT NULL DEFAULT 0,
			box_storage_liter NUMERIC NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (date, warehouse)
		);`,
	},
	{
		Version:     2,
		Name:        "create_sync_runs",
		Description: "History of ingestion and export cycles",
		SQL: `
		CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			date TEXT,
			status TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			targets TEXT NOT NULL DEFAULT '',
			failed_targets TEXT NOT NULL DEFAULT '',
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);`,
	},
}

// Migrate applies pending migrations. Each migration and its bookkeeping row
// commit together, so a failed migration can be retried.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("%w: create migrations table: %w", tariff.ErrMigrationFailed, err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", tariff.ErrMigrationFailed, err)
	}

	count := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("%w: v%d (%s): %w", tariff.ErrMigrationFailed, m.Version, m.Name, err)
		}
		count++
	}

	if count > 0 {
		logging.Info().Str("backend", "sqlite").Int("applied", count).Msg("Database migrations applied")
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m Migration) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Description)
	if err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
