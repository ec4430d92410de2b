/*
store.go - Persistence interfaces for tariffs and cycle runs

PURPOSE:
  Defines the boundary between the orchestrator and the database. Backends
  (SQLite, PostgreSQL, in-memory) implement these interfaces.

IDEMPOTENT UPSERT CONTRACT:
  UpsertTariffs writes every record keyed by (date, warehouse) inside one
  transaction. Absent rows are inserted, present rows have all non-key
  fields overwritten and updated_at refreshed. Calling it twice with the
  same input leaves the same final state as calling it once. On any failure
  the whole call is rolled back and an error wrapping ErrUpsertFailed is
  returned.

ORDERING:
  GetTariffsByDate returns rows by box_delivery_coef_expr ascending, ties
  broken by warehouse name. GetAvailableDates returns newest first.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (local runs, tests)
  - store/postgres/postgres.go: PostgreSQL (production)
  - tariff/store/memory.go: in-memory for testing
*/
package tariff

import (
	"context"
	"sort"
)

// Store persists tariff records.
type Store interface {
	// UpsertTariffs writes records for date atomically. Empty input is a no-op.
	UpsertTariffs(ctx context.Context, date Date, records []Record) error

	// GetTariffsByDate returns all records for date in presentation order.
	GetTariffsByDate(ctx context.Context, date Date) ([]Record, error)

	// GetAvailableDates returns the distinct dates that have records, newest first.
	GetAvailableDates(ctx context.Context) ([]Date, error)
}

// RunStore persists cycle run records.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
}

// Backend is a full database backend as opened by store.Open.
type Backend interface {
	Store
	RunStore

	// Migrate applies pending schema migrations in order.
	Migrate(ctx context.Context) error

	Close() error
}

// SortForPresentation orders records the way GetTariffsByDate must return them.
// Used by backends that cannot sort in the query.
func SortForPresentation(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if c := records[i].BoxDeliveryCoefExpr.Cmp(records[j].BoxDeliveryCoefExpr); c != 0 {
			return c < 0
		}
		return records[i].Warehouse < records[j].Warehouse
	})
}
