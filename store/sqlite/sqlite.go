/*
Package sqlite provides a SQLite-backed implementation of the tariff store.

PURPOSE:
  Implements tariff.Backend (Store, RunStore, Migrate, Close) using SQLite.
  Used for local runs and as the fast backend in tests. Production uses the
  PostgreSQL backend with the same schema and semantics.

KEY TABLES:
  box_tariffs:       One row per (date, warehouse), six numeric tariff amounts
  sync_runs:         Outcome of every ingestion/export cycle
  schema_migrations: Applied migration versions

UPSERT:
  UpsertTariffs runs every record through
  INSERT ... ON CONFLICT(date, warehouse) DO UPDATE inside one transaction.
  Any failure rolls the whole call back.

CONCURRENCY:
  SQLite allows one writer. The pool is pinned to a single connection and a
  sync.RWMutex serializes writers against readers.

USAGE:
  store, err := sqlite.New("./wb_tariffs.db")
  if err != nil {
      return err
  }
  defer store.Close()
  if err := store.Migrate(ctx); err != nil {
      return err
  }

SEE ALSO:
  - tariff/store.go: Interface definitions
  - store/postgres: Production implementation
  - migrations.go: Versioned schema
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/wb-tariffs/tariff"
)

// Fixed-width so timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements tariff.Backend using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// now is the clock used for updated_at; replaced in tests.
	now func() time.Time
}

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory database.
// The schema is not created until Migrate is called.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and matches SQLite's single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock replaces the clock used for updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// =============================================================================
// TARIFF STORE (tariff.Store interface)
// =============================================================================

const upsertTariffSQL = `
	INSERT INTO box_tariffs
	(date, warehouse, box_delivery_base, box_delivery_coef_expr, box_delivery_liter,
	 box_storage_base, box_storage_coef_expr, box_storage_liter, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(date, warehouse) DO UPDATE SET
		box_delivery_base = excluded.box_delivery_base,
		box_delivery_coef_expr = excluded.box_delivery_coef_expr,
		box_delivery_liter = excluded.box_delivery_liter,
		box_storage_base = excluded.box_storage_base,
		box_storage_coef_expr = excluded.box_storage_coef_expr,
		box_storage_liter = excluded.box_storage_liter,
		updated_at = excluded.updated_at
`

// UpsertTariffs writes records for date atomically.
func (s *Store) UpsertTariffs(ctx context.Context, date tariff.Date, records []tariff.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", tariff.ErrUpsertFailed, err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx, upsertTariffSQL)
	if err != nil {
		return fmt.Errorf("%w: prepare: %w", tariff.ErrUpsertFailed, err)
	}
	defer stmt.Close()

	for _, r := range tariff.Stamp(date, records, s.now()) {
		_, err := stmt.ExecContext(ctx,
			r.Date.String(),
			r.Warehouse,
			r.BoxDeliveryBase.String(),
			r.BoxDeliveryCoefExpr.String(),
			r.BoxDeliveryLiter.String(),
			r.BoxStorageBase.String(),
			r.BoxStorageCoefExpr.String(),
			r.BoxStorageLiter.String(),
			r.UpdatedAt.Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("%w: warehouse %q: %w", tariff.ErrUpsertFailed, r.Warehouse, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", tariff.ErrUpsertFailed, err)
	}
	return nil
}

// GetTariffsByDate returns records for date by delivery coefficient ascending.
func (s *Store) GetTariffsByDate(ctx context.Context, date tariff.Date) ([]tariff.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT date, warehouse,
		       CAST(box_delivery_base AS TEXT), CAST(box_delivery_coef_expr AS TEXT),
		       CAST(box_delivery_liter AS TEXT), CAST(box_storage_base AS TEXT),
		       CAST(box_storage_coef_expr AS TEXT), CAST(box_storage_liter AS TEXT),
		       updated_at
		FROM box_tariffs
		WHERE date = ?
		ORDER BY CAST(box_delivery_coef_expr AS REAL) ASC, warehouse ASC
	`

	rows, err := s.db.QueryContext(ctx, query, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var records []tariff.Record
	for rows.Next() {
		r, err := scanTariff(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetAvailableDates returns distinct dates, newest first.
func (s *Store) GetAvailableDates(ctx context.Context) ([]tariff.Date, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT date FROM box_tariffs ORDER BY date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()

	var dates []tariff.Date
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		d, err := tariff.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func scanTariff(rows *sql.Rows) (tariff.Record, error) {
	var (
		r         tariff.Record
		date      string
		amounts   [6]string
		updatedAt string
	)

	err := rows.Scan(
		&date, &r.Warehouse,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
		&updatedAt,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan tariff: %w", err)
	}

	if r.Date, err = tariff.ParseDate(date); err != nil {
		return r, err
	}
	r.BoxDeliveryBase = parseAmount(amounts[0])
	r.BoxDeliveryCoefExpr = parseAmount(amounts[1])
	r.BoxDeliveryLiter = parseAmount(amounts[2])
	r.BoxStorageBase = parseAmount(amounts[3])
	r.BoxStorageCoefExpr = parseAmount(amounts[4])
	r.BoxStorageLiter = parseAmount(amounts[5])
	r.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return r, nil
}

// =============================================================================
// RUN STORE (tariff.RunStore interface)
// =============================================================================

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, r tariff.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sync_runs
		(id, kind, date, status, row_count, targets, failed_targets, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			row_count = excluded.row_count,
			targets = excluded.targets,
			failed_targets = excluded.failed_targets,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, string(r.Kind), dateOrNull(r.Date), string(r.Status), r.Rows,
		strings.Join(r.Targets, ","), strings.Join(r.FailedTargets, ","),
		nullString(r.Error),
		r.StartedAt.UTC().Format(timeLayout),
		timeOrNull(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, filter tariff.RunFilter) ([]tariff.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, date, status, row_count, targets, failed_targets, error, started_at, finished_at
		FROM sync_runs
	`
	var args []any
	if filter.Kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(filter.Kind))
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []tariff.Run
	for rows.Next() {
		var (
			r                      tariff.Run
			kind, status           string
			date, runErr, finished sql.NullString
			targets, failed        string
			started                string
		)
		if err := rows.Scan(&r.ID, &kind, &date, &status, &r.Rows, &targets, &failed, &runErr, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = tariff.RunKind(kind)
		r.Status = tariff.RunStatus(status)
		if date.Valid {
			r.Date, _ = tariff.ParseDate(date.String)
		}
		r.Targets = splitList(targets)
		r.FailedTargets = splitList(failed)
		r.Error = runErr.String
		r.StartedAt, _ = time.Parse(timeLayout, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(timeLayout, finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func dateOrNull(d tariff.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func timeOrNull(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseAmount(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
