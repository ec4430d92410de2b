//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/warp/wb-tariffs/tariff"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func startPostgres(t *testing.T) *Store {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "wb_tariffs",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/wb_tariffs?sslmode=disable", host, port.Port())
	s, err := New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgres_TariffLifecycle(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()
	date := tariff.MustParseDate("2024-03-01")

	batch := []tariff.Record{
		{Warehouse: "Коледино", BoxDeliveryBase: decimal.RequireFromString("48"), BoxDeliveryCoefExpr: decimal.RequireFromString("160")},
		{Warehouse: "Moscow", BoxDeliveryBase: decimal.RequireFromString("40.5"), BoxDeliveryCoefExpr: decimal.RequireFromString("95")},
		{Warehouse: "Казань", BoxDeliveryBase: decimal.RequireFromString("35"), BoxDeliveryCoefExpr: decimal.RequireFromString("100")},
	}

	// Idempotent upsert
	require.NoError(t, s.UpsertTariffs(ctx, date, batch))
	require.NoError(t, s.UpsertTariffs(ctx, date, batch))

	got, err := s.GetTariffsByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Moscow", got[0].Warehouse)
	assert.Equal(t, "Казань", got[1].Warehouse)
	assert.Equal(t, "Коледино", got[2].Warehouse)
	assert.True(t, got[0].BoxDeliveryBase.Equal(decimal.RequireFromString("40.5")))

	// Merge on conflict
	require.NoError(t, s.UpsertTariffs(ctx, date, []tariff.Record{
		{Warehouse: "Moscow", BoxDeliveryBase: decimal.RequireFromString("41"), BoxDeliveryCoefExpr: decimal.RequireFromString("95")},
	}))
	got, err = s.GetTariffsByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].BoxDeliveryBase.Equal(decimal.NewFromInt(41)))

	// Blank names are stored like any other
	require.NoError(t, s.UpsertTariffs(ctx, date, []tariff.Record{{Warehouse: ""}}))
	got, err = s.GetTariffsByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, got, 4)

	// Atomic rollback: the second amount overflows NUMERIC(10,2)
	err = s.UpsertTariffs(ctx, date.AddDays(1), []tariff.Record{
		{Warehouse: "A"},
		{Warehouse: "B", BoxDeliveryBase: decimal.RequireFromString("1000000000")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tariff.ErrUpsertFailed))

	dates, err := s.GetAvailableDates(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, date, dates[0])
}

func TestPostgres_MigrateTwiceAndRuns(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	version, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)

	start := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	run := tariff.Run{
		ID: "run-1", Kind: tariff.RunExport, Date: tariff.MustParseDate("2024-03-01"),
		Status: tariff.RunCompleted, Targets: []string{"a", "b"}, FailedTargets: []string{"b"},
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.SaveRun(ctx, tariff.Run{ID: "run-0", Kind: tariff.RunIngest, Status: tariff.RunEmpty, StartedAt: start.Add(-time.Hour)}))

	runs, err := s.ListRuns(ctx, tariff.RunFilter{Kind: tariff.RunExport})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"a", "b"}, runs[0].Targets)
	assert.Equal(t, []string{"b"}, runs[0].FailedTargets)
	assert.Equal(t, time.Second, runs[0].Duration())

	runs, err = s.ListRuns(ctx, tariff.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.True(t, runs[1].Date.IsZero())
}
