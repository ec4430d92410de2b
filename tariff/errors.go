/*
errors.go - Centralized error types for tariff sync

PURPOSE:
  All sentinel errors in one place. Backends and clients wrap these with
  context so callers can match with errors.Is().

ERROR CATEGORIES:
  1. Input errors - malformed dates
  2. Store errors - upsert, migration, driver selection

SEE ALSO:
  - store/sqlite, store/postgres: wrap ErrUpsertFailed / ErrMigrationFailed
  - source/client.go: StatusError for non-2xx upstream responses
*/
package tariff

import "errors"

var (
	// ErrInvalidDate is returned when a date string is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

	// ErrUpsertFailed is returned when an upsert transaction was rolled back.
	// Nothing from the call was committed.
	ErrUpsertFailed = errors.New("tariff upsert failed")

	// ErrMigrationFailed is returned when a schema migration cannot be applied.
	ErrMigrationFailed = errors.New("schema migration failed")

	// ErrUnknownDriver is returned for an unsupported database driver name.
	ErrUnknownDriver = errors.New("unknown database driver")
)
