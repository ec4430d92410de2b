package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar points at an explicit YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"/etc/wb-tariffs/config.yaml",
}

// envMappings maps environment variables (lower-cased) to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"db_driver":    "database.driver",
	"db_host":      "database.host",
	"db_port":      "database.port",
	"db_user":      "database.user",
	"db_password":  "database.password",
	"db_name":      "database.name",
	"db_sslmode":   "database.sslmode",
	"db_max_conns": "database.max_conns",
	"sqlite_path":  "database.sqlite_path",

	"wb_api_base_url": "source.base_url",
	"wb_api_token":    "source.token",
	"wb_api_timeout":  "source.timeout",
	"wb_api_rps":      "source.requests_per_second",

	"google_service_account_email": "sheets.service_account_email",
	"google_private_key":           "sheets.private_key",
	"google_spreadsheet_ids":       "sheets.spreadsheet_ids",

	"ingest_interval":      "schedule.ingest_interval",
	"ingest_offset":        "schedule.ingest_offset",
	"export_interval":      "schedule.export_interval",
	"export_offset":        "schedule.export_offset",
	"initial_delay":        "schedule.initial_delay",
	"initial_export_delay": "schedule.initial_export_delay",
	"tariff_timezone":      "schedule.timezone",

	"http_enabled": "server.enabled",
	"http_addr":    "server.addr",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// sliceConfigPaths hold comma-separated lists when set from the environment.
var sliceConfigPaths = []string{
	"sheets.spreadsheet_ids",
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Env files usually carry the PEM key with literal \n sequences.
	cfg.Sheets.PrivateKey = strings.ReplaceAll(cfg.Sheets.PrivateKey, `\n`, "\n")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
