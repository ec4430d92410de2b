package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

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

// migrationLockID serializes concurrent Migrate calls across processes.
const migrationLockID = 727_001

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var migrations = []Migration{
	{
		Version:     1,
		Name:        "create_box_tariffs",
		Description: "Box tariffs keyed by date and warehouse",
		SQL: `
		CREATE TABLE IF NOT EXISTS box_tariffs (
			date DATE NOT NULL,
			warehouse VARCHAR(255) NOT NULL,
			box_delivery_base NUMERIC(10,2) NOT NULL DEFAULT 0,
			box_delivery_coef_expr NUMERIC(10,2) NOT NULL DEFAULT 0,
			box_delivery_liter NUMERIC(10,2) NOT NULL DEFAULT 0,
			box_storage_base NUMERIC(10,2) NOT NULL DEFAULT 0,
			box_storage_coef_expr NUMERIC(10,2) NOT NULL DEFAULT 0,
			box_storage_liter NUMERIC(10,2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (date, warehouse)
		)`,
	},
	{
		Version:     2,
		Name:        "create_sync_runs",
		Description: "History of ingestion and export cycles",
		SQL: `
		CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			date DATE,
			status TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			targets TEXT[] NOT NULL DEFAULT '{}',
			failed_targets TEXT[] NOT NULL DEFAULT '{}',
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs (started_at DESC)`,
	},
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("%w: create migrations table: %w", tariff.ErrMigrationFailed, err)
	}

	count := 0
	for _, m := range migrations {
		applied, err := s.apply(ctx, m)
		if err != nil {
			return fmt.Errorf("%w: v%d (%s): %w", tariff.ErrMigrationFailed, m.Version, m.Name, err)
		}
		if applied {
			count++
		}
	}

	if count > 0 {
		logging.Info().Str("backend", "postgres").Int("applied", count).Msg("Database migrations applied")
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m Migration) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return false, err
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	// Multi-statement SQL needs the simple protocol.
	if _, err := tx.Exec(ctx, m.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name, description) VALUES ($1, $2, $3)`,
		m.Version, m.Name, m.Description)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// SchemaVersion returns the highest applied migration version, 0 when none.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
