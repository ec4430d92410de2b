/*
main.go - Application entry point

PURPOSE:
  Command line for the tariff sync service. The default command runs the
  service; the others are one-shot maintenance tasks against the same
  configuration.

COMMANDS:
  serve         Run scheduler + HTTP API until SIGINT/SIGTERM (default)
  migrate       Apply schema migrations and exit
  fetch         Fetch tariffs for a date, print a summary, optionally save
  dates         List dates with stored tariffs
  export        Export a stored day to every configured spreadsheet
  create-sheet  Create a spreadsheet with the tariff sheet

CONFIGURATION:
  Loaded once by the root command (see config package): defaults, then
  an optional YAML file (--config or CONFIG_PATH), then environment.

EXAMPLES:
  # Run the service against a local SQLite file
  DB_DRIVER=sqlite WB_API_TOKEN=... ./server

  # Check what the API returns today without touching the database
  ./server fetch

SEE ALSO:
  - serve.go: Service startup and graceful shutdown
  - commands.go: One-shot commands
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warp/wb-tariffs/config"
	"github.com/warp/wb-tariffs/logging"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

// cfg is loaded by the root command before any subcommand runs.
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Marketplace box tariff sync service",
	Long:          "Fetches box tariffs hourly, stores them and mirrors today's tariffs into Google Sheets.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := os.Setenv(config.ConfigPathEnvVar, path); err != nil {
				return err
			}
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			level = override
		}
		logging.Init(logging.Config{
			Level:  level,
			Format: cfg.Logging.Format,
			Caller: cfg.Logging.Caller,
		})
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(datesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(createSheetCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Skip config loading.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wb-tariffs %s (%s)\n", version, commit)
	},
}
