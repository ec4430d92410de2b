// Package store opens the configured tariff backend.
package store

import (
	"context"
	"fmt"

	"github.com/warp/wb-tariffs/config"
	"github.com/warp/wb-tariffs/store/postgres"
	"github.com/warp/wb-tariffs/store/sqlite"
	"github.com/warp/wb-tariffs/tariff"
	memstore "github.com/warp/wb-tariffs/tariff/store"
)

// Open connects to the backend named by cfg.Driver. Migrations are not run.
func Open(ctx context.Context, cfg config.DatabaseConfig) (tariff.Backend, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := postgres.New(ctx, cfg.PostgresDSN(), cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	case "memory":
		return memstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", tariff.ErrUnknownDriver, cfg.Driver)
	}
}

// SchemaVersioner is implemented by backends that track migrations.
type SchemaVersioner interface {
	SchemaVersion(ctx context.Context) (int, error)
}
