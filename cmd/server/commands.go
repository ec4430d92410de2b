package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/wb-tariffs/config"
	"github.com/warp/wb-tariffs/store"
	"github.com/warp/wb-tariffs/tariff"
)

// nowFunc is the clock for default dates.
var nowFunc = time.Now

var errExportDisabled = errors.New("spreadsheet export is not configured (GOOGLE_SERVICE_ACCOUNT_EMAIL, GOOGLE_PRIVATE_KEY)")

// =============================================================================
// MIGRATE
// =============================================================================

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func runMigrate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	backend, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if v, ok := backend.(store.SchemaVersioner); ok {
		version, err := v.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Schema is at version %d\n", version)
		return nil
	}
	fmt.Fprintln(out, "Migrations applied")
	return nil
}

// =============================================================================
// FETCH
// =============================================================================

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch tariffs for a date and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		save, _ := cmd.Flags().GetBool("save")
		return runFetch(cmd.Context(), cfg, cmd.OutOrStdout(), date, save)
	},
}

func init() {
	fetchCmd.Flags().String("date", "", "date to fetch, YYYY-MM-DD (default: today)")
	fetchCmd.Flags().Bool("save", false, "upsert the fetched tariffs into the store")
}

func runFetch(ctx context.Context, cfg *config.Config, out io.Writer, dateFlag string, save bool) error {
	date, err := resolveDate(cfg, dateFlag)
	if err != nil {
		return err
	}

	snap, err := newSource(cfg).FetchBoxTariffs(ctx, date)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Fetched %d warehouses for %s\n", len(snap.Records), date)
	fmt.Fprintf(out, "dtNextBox: %s\n", orDash(snap.DtNextBox))
	fmt.Fprintf(out, "dtTillMax: %s\n", orDash(snap.DtTillMax))

	if !save || len(snap.Records) == 0 {
		return nil
	}

	backend, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.UpsertTariffs(ctx, date, snap.Records); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %d rows\n", len(snap.Records))
	return nil
}

// =============================================================================
// DATES
// =============================================================================

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List dates with stored tariffs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDates(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

func runDates(ctx context.Context, cfg *config.Config, out io.Writer) error {
	backend, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	dates, err := backend.GetAvailableDates(ctx)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Fprintln(out, "No tariffs stored")
		return nil
	}
	for _, d := range dates {
		fmt.Fprintln(out, d)
	}
	return nil
}

// =============================================================================
// EXPORT
// =============================================================================

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored tariffs to every configured spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		return runExport(cmd.Context(), cfg, cmd.OutOrStdout(), date)
	},
}

func init() {
	exportCmd.Flags().String("date", "", "date to export, YYYY-MM-DD (default: today)")
}

func runExport(ctx context.Context, cfg *config.Config, out io.Writer, dateFlag string) error {
	date, err := resolveDate(cfg, dateFlag)
	if err != nil {
		return err
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	if exp == nil {
		return errExportDisabled
	}
	if len(cfg.Sheets.SpreadsheetIDs) == 0 {
		return errors.New("no spreadsheet IDs configured (GOOGLE_SPREADSHEET_IDS)")
	}

	backend, err := openMigrated(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	records, err := backend.GetTariffsByDate(ctx, date)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No tariffs stored for %s\n", date)
		return nil
	}

	var errs []error
	for _, id := range cfg.Sheets.SpreadsheetIDs {
		if err := exp.Export(ctx, id, date, records); err != nil {
			fmt.Fprintf(out, "%s: FAILED: %v\n", id, err)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		fmt.Fprintf(out, "%s: %d rows\n", id, len(records))
	}
	return errors.Join(errs...)
}

// =============================================================================
// CREATE-SHEET
// =============================================================================

var createSheetCmd = &cobra.Command{
	Use:   "create-sheet",
	Short: "Create a spreadsheet with the tariff sheet and print its ID",
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		return runCreateSheet(cmd.Context(), cfg, cmd.OutOrStdout(), title)
	},
}

func init() {
	createSheetCmd.Flags().String("title", "WB Tariffs", "spreadsheet title")
}

func runCreateSheet(ctx context.Context, cfg *config.Config, out io.Writer, title string) error {
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}
	if exp == nil {
		return errExportDisabled
	}

	id, err := exp.CreateSpreadsheet(ctx, title)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, id)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func resolveDate(cfg *config.Config, s string) (tariff.Date, error) {
	if s == "" {
		return tariff.Today(nowFunc(), cfg.Schedule.Location()), nil
	}
	return tariff.ParseDate(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

