package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/wb-tariffs/api"
	"github.com/warp/wb-tariffs/config"
	"github.com/warp/wb-tariffs/logging"
	"github.com/warp/wb-tariffs/scheduler"
	"github.com/warp/wb-tariffs/sheets"
	"github.com/warp/wb-tariffs/source"
	"github.com/warp/wb-tariffs/store"
	"github.com/warp/wb-tariffs/supervisor"
	"github.com/warp/wb-tariffs/tariff"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

// runServe starts the service and blocks until SIGINT/SIGTERM.
//
// STARTUP SEQUENCE:
//  1. Open the store and apply migrations (failure aborts startup)
//  2. Build the source client and, when configured, the exporter
//  3. Build the orchestrator and the HTTP API
//  4. Run both under the supervisor tree until a signal arrives
//  5. Close the store
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("version", version).Str("config", cfg.String()).Msg("Starting tariff sync service")

	backend, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close store")
		}
	}()

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator(cfg, newSource(cfg), backend, exporter)
	if err != nil {
		return err
	}

	tree := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddWorker(supervisor.NewSchedulerService(orch))

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewRouter(api.NewHandler(backend, backend, orch), api.RouterOptions{}),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Manual cycles answer once the cycle is done.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}
		tree.AddAPIService(supervisor.NewHTTPServerService(srv, 30*time.Second))
		logging.Info().Str("addr", cfg.Server.Addr).Msg("HTTP API enabled")
	}

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("Services did not stop within the shutdown timeout")
	}
	logging.Info().Msg("Service stopped")
	return nil
}

// =============================================================================
// WIRING
// =============================================================================

// openMigrated opens the configured backend and applies pending migrations.
func openMigrated(ctx context.Context, cfg *config.Config) (tariff.Backend, error) {
	backend, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := backend.Migrate(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return backend, nil
}

func newSource(cfg *config.Config) *source.Client {
	if cfg.Source.Token == "" {
		logging.Warn().Msg("WB_API_TOKEN is empty, tariff API requests will be rejected")
	}
	return source.NewClient(source.Options{
		BaseURL:           cfg.Source.BaseURL,
		Token:             cfg.Source.Token,
		Timeout:           cfg.Source.Timeout,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		UserAgent:         "wb-tariffs/" + version,
	})
}

// newExporter returns nil without error when spreadsheet export is not
// configured.
func newExporter(ctx context.Context, cfg *config.Config) (*sheets.Exporter, error) {
	if !cfg.SheetsEnabled() {
		logging.Warn().Msg("Google service account not configured, spreadsheet export disabled")
		return nil, nil
	}
	if len(cfg.Sheets.SpreadsheetIDs) == 0 {
		logging.Warn().Msg("GOOGLE_SPREADSHEET_IDS is empty, nothing to export to")
	}
	exp, err := sheets.New(ctx, sheets.Credentials{
		Email:      cfg.Sheets.ServiceAccountEmail,
		PrivateKey: cfg.Sheets.PrivateKey,
	})
	if err != nil {
		return nil, fmt.Errorf("sheets: %w", err)
	}
	return exp, nil
}

func newOrchestrator(cfg *config.Config, src scheduler.Source, backend tariff.Backend, exp *sheets.Exporter) (*scheduler.Orchestrator, error) {
	opts := scheduler.Options{
		Source:   src,
		Store:    backend,
		Runs:     backend,
		Targets:  cfg.Sheets.SpreadsheetIDs,
		Location: cfg.Schedule.Location(),
		Schedule: scheduler.Schedule{
			IngestInterval:     cfg.Schedule.IngestInterval,
			IngestOffset:       cfg.Schedule.IngestOffset,
			ExportInterval:     cfg.Schedule.ExportInterval,
			ExportOffset:       cfg.Schedule.ExportOffset,
			InitialDelay:       cfg.Schedule.InitialDelay,
			InitialExportDelay: cfg.Schedule.InitialExportDelay,
		},
	}
	// A nil *sheets.Exporter must stay a nil interface.
	if exp != nil {
		opts.Exporter = exp
	}
	return scheduler.New(opts)
}
