package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/wb-tariffs/config"
	"github.com/warp/wb-tariffs/tariff"
	memstore "github.com/warp/wb-tariffs/tariff/store"
)

const tariffBody = `{"response":{"data":{
	"dtNextBox":"2024-03-02","dtTillMax":"2024-03-31",
	"warehouseList":[
		{"warehouseName":"Moscow","boxDeliveryBase":"40,5","boxDeliveryCoefExpr":"100"},
		{"warehouseName":"Казань","boxDeliveryBase":"35","boxDeliveryCoefExpr":"-"}
	]}}}`

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "tariffs.db"),
		},
		Source: config.SourceConfig{
			BaseURL: baseURL,
			Token:   "test-token",
			Timeout: 5 * time.Second,
		},
		Schedule: config.ScheduleConfig{Timezone: "UTC"},
	}
}

func tariffServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(tariffBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunFetch_PrintsSummary(t *testing.T) {
	cfg := testConfig(t, tariffServer(t).URL)
	var out bytes.Buffer

	require.NoError(t, runFetch(context.Background(), cfg, &out, "2024-03-01", false))

	assert.Contains(t, out.String(), "Fetched 2 warehouses for 2024-03-01")
	assert.Contains(t, out.String(), "dtTillMax: 2024-03-31")
	assert.NotContains(t, out.String(), "Saved")
}

func TestRunFetch_SaveThenListDates(t *testing.T) {
	cfg := testConfig(t, tariffServer(t).URL)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runFetch(ctx, cfg, &out, "2024-03-01", true))
	assert.Contains(t, out.String(), "Saved 2 rows")

	out.Reset()
	require.NoError(t, runDates(ctx, cfg, &out))
	assert.Equal(t, "2024-03-01\n", out.String())

	out.Reset()
	require.NoError(t, runMigrate(ctx, cfg, &out))
	assert.Contains(t, out.String(), "Schema is at version 2")
}

func TestRunFetch_InvalidDate(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	err := runFetch(context.Background(), cfg, &bytes.Buffer{}, "01.03.2024", false)
	assert.ErrorIs(t, err, tariff.ErrInvalidDate)
}

func TestRunDates_Empty(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	var out bytes.Buffer
	require.NoError(t, runDates(context.Background(), cfg, &out))
	assert.Equal(t, "No tariffs stored\n", out.String())
}

func TestExportCommands_RequireCredentials(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	assert.ErrorIs(t, runExport(context.Background(), cfg, &bytes.Buffer{}, ""), errExportDisabled)
	assert.ErrorIs(t, runCreateSheet(context.Background(), cfg, &bytes.Buffer{}, "x"), errExportDisabled)
}

func TestNewOrchestrator_WithoutExporterDisablesExport(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Sheets.SpreadsheetIDs = []string{"sheet-a"}

	exp, err := newExporter(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, exp)

	mem := memstore.NewMemory()
	orch, err := newOrchestrator(cfg, newSource(cfg), mem, exp)
	require.NoError(t, err)

	res := orch.RunExportCycle(context.Background())
	assert.Equal(t, tariff.RunDisabled, res.Status)
	assert.False(t, orch.Status().ExportEnabled)
}

func TestResolveDate_UsesConfiguredTimezone(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Schedule.Timezone = "Europe/Moscow"

	orig := nowFunc
	nowFunc = func() time.Time { return time.Date(2024, 2, 29, 22, 30, 0, 0, time.UTC) }
	defer func() { nowFunc = orig }()

	d, err := resolveDate(cfg, "")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d.String())
}
