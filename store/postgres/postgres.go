/*
Package postgres provides the PostgreSQL implementation of the tariff store.

PURPOSE:
  Production backend. Same tables and semantics as store/sqlite, backed by a
  pgx connection pool shared by the ingestion cycle, the export cycle and the
  HTTP API.

UPSERT:
  All records of one UpsertTariffs call are queued on a pgx.Batch and sent
  inside a single transaction. The first failing statement aborts the batch
  and the deferred Rollback discards everything.

TYPES:
  Amounts travel as decimal strings cast to numeric(10,2) and come back as
  ::text, so no float conversion happens on either side. Dates travel as
  YYYY-MM-DD strings cast to date.

SEE ALSO:
  - tariff/store.go: Interface definitions
  - store/sqlite: Local and test backend
  - migrations.go: Versioned schema
*/
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/wb-tariffs/tariff"
)

// Store implements tariff.Backend on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects to dsn and verifies the connection.
func New(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 4
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, now: time.Now}, nil
}

// Close releases all pool connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// SetClock replaces the clock used for updated_at. Not safe during writes.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// =============================================================================
// TARIFF STORE
// =============================================================================

const upsertTariffSQL = `
	INSERT INTO box_tariffs
	(date, warehouse, box_delivery_base, box_delivery_coef_expr, box_delivery_liter,
	 box_storage_base, box_storage_coef_expr, box_storage_liter, updated_at)
	VALUES ($1::date, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9)
	ON CONFLICT (date, warehouse) DO UPDATE SET
		box_delivery_base = EXCLUDED.box_delivery_base,
		box_delivery_coef_expr = EXCLUDED.box_delivery_coef_expr,
		box_delivery_liter = EXCLUDED.box_delivery_liter,
		box_storage_base = EXCLUDED.box_storage_base,
		box_storage_coef_expr = EXCLUDED.box_storage_coef_expr,
		box_storage_liter = EXCLUDED.box_storage_liter,
		updated_at = EXCLUDED.updated_at
`

func (s *Store) UpsertTariffs(ctx context.Context, date tariff.Date, records []tariff.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", tariff.ErrUpsertFailed, err)
	}
	defer tx.Rollback(ctx)

	stamped := tariff.Stamp(date, records, s.now())
	b := &pgx.Batch{}
	for _, r := range stamped {
		b.Queue(upsertTariffSQL,
			r.Date.String(),
			r.Warehouse,
			r.BoxDeliveryBase.String(),
			r.BoxDeliveryCoefExpr.String(),
			r.BoxDeliveryLiter.String(),
			r.BoxStorageBase.String(),
			r.BoxStorageCoefExpr.String(),
			r.BoxStorageLiter.String(),
			r.UpdatedAt,
		)
	}

	br := tx.SendBatch(ctx, b)
	for _, r := range stamped {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%w: warehouse %q: %w", tariff.ErrUpsertFailed, r.Warehouse, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: %w", tariff.ErrUpsertFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", tariff.ErrUpsertFailed, err)
	}
	return nil
}

func (s *Store) GetTariffsByDate(ctx context.Context, date tariff.Date) ([]tariff.Record, error) {
	query := `
		SELECT to_char(date, 'YYYY-MM-DD'), warehouse,
		       box_delivery_base::text, box_delivery_coef_expr::text, box_delivery_liter::text,
		       box_storage_base::text, box_storage_coef_expr::text, box_storage_liter::text,
		       updated_at
		FROM box_tariffs
		WHERE date = $1::date
		ORDER BY box_delivery_coef_expr ASC, warehouse ASC
	`

	rows, err := s.pool.Query(ctx, query, date.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var records []tariff.Record
	for rows.Next() {
		var (
			r       tariff.Record
			day     string
			amounts [6]string
		)
		err := rows.Scan(&day, &r.Warehouse,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4], &amounts[5],
			&r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		if r.Date, err = tariff.ParseDate(day); err != nil {
			return nil, err
		}
		r.BoxDeliveryBase = decimal.RequireFromString(amounts[0])
		r.BoxDeliveryCoefExpr = decimal.RequireFromString(amounts[1])
		r.BoxDeliveryLiter = decimal.RequireFromString(amounts[2])
		r.BoxStorageBase = decimal.RequireFromString(amounts[3])
		r.BoxStorageCoefExpr = decimal.RequireFromString(amounts[4])
		r.BoxStorageLiter = decimal.RequireFromString(amounts[5])
		r.UpdatedAt = r.UpdatedAt.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) GetAvailableDates(ctx context.Context) ([]tariff.Date, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT to_char(date, 'YYYY-MM-DD') AS day FROM box_tariffs ORDER BY day DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()

	var dates []tariff.Date
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		d, err := tariff.ParseDate(day)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// =============================================================================
// RUN STORE
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, r tariff.Run) error {
	query := `
		INSERT INTO sync_runs
		(id, kind, date, status, row_count, targets, failed_targets, error, started_at, finished_at)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			row_count = EXCLUDED.row_count,
			targets = EXCLUDED.targets,
			failed_targets = EXCLUDED.failed_targets,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`

	var date, runErr *string
	if !r.Date.IsZero() {
		d := r.Date.String()
		date = &d
	}
	if r.Error != "" {
		runErr = &r.Error
	}
	var finished *time.Time
	if !r.FinishedAt.IsZero() {
		finished = &r.FinishedAt
	}

	_, err := s.pool.Exec(ctx, query,
		r.ID, string(r.Kind), date, string(r.Status), r.Rows,
		nonNil(r.Targets), nonNil(r.FailedTargets), runErr, r.StartedAt, finished)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, filter tariff.RunFilter) ([]tariff.Run, error) {
	query := `
		SELECT id, kind, to_char(date, 'YYYY-MM-DD'), status, row_count, targets, failed_targets,
		       error, started_at, finished_at
		FROM sync_runs
		WHERE ($1 = '' OR kind = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, string(filter.Kind), filter.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []tariff.Run
	for rows.Next() {
		var (
			r            tariff.Run
			kind, status string
			date, runErr *string
			finished     *time.Time
		)
		err := rows.Scan(&r.ID, &kind, &date, &status, &r.Rows, &r.Targets, &r.FailedTargets,
			&runErr, &r.StartedAt, &finished)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Kind = tariff.RunKind(kind)
		r.Status = tariff.RunStatus(status)
		if date != nil {
			r.Date, _ = tariff.ParseDate(*date)
		}
		if runErr != nil {
			r.Error = *runErr
		}
		r.StartedAt = r.StartedAt.UTC()
		if finished != nil {
			r.FinishedAt = finished.UTC()
		}
		if len(r.Targets) == 0 {
			r.Targets = nil
		}
		if len(r.FailedTargets) == 0 {
			r.FailedTargets = nil
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
