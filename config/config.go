/*
Package config holds the service configuration.

PURPOSE:
  One explicit Config value is built in main and passed into constructors.
  No other package reads the environment.

LOADING ORDER (koanf.go):
  1. Defaults from defaultConfig()
  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/wb-tariffs/config.yaml)
  3. Environment variables (see envMappings)

OPTIONAL FEATURES:
  Spreadsheet export is enabled only when both the service account email and
  private key are set. Without them the service runs ingestion only.
*/
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Source   SourceConfig   `koanf:"source"`
	Sheets   SheetsConfig   `koanf:"sheets"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig selects and configures the store backend.
type DatabaseConfig struct {
	Driver     string `koanf:"driver" validate:"oneof=postgres sqlite memory"`
	Host       string `koanf:"host"`
	Port       int    `koanf:"port" validate:"min=1,max=65535"`
	User       string `koanf:"user"`
	Password   string `koanf:"password"`
	Name       string `koanf:"name"`
	SSLMode    string `koanf:"sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns   int    `koanf:"max_conns" validate:"min=1"`
	SQLitePath string `koanf:"sqlite_path"`
}

// PostgresDSN builds a postgres:// connection URL.
func (d DatabaseConfig) PostgresDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SourceConfig configures the tariff API client.
type SourceConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	Token             string        `koanf:"token"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
}

// SheetsConfig configures the spreadsheet exporter.
type SheetsConfig struct {
	ServiceAccountEmail string   `koanf:"service_account_email"`
	PrivateKey          string   `koanf:"private_key"`
	SpreadsheetIDs      []string `koanf:"spreadsheet_ids"`
}

// ScheduleConfig configures the two repeating cycles.
type ScheduleConfig struct {
	IngestInterval     time.Duration `koanf:"ingest_interval" validate:"gt=0"`
	IngestOffset       time.Duration `koanf:"ingest_offset" validate:"gte=0"`
	ExportInterval     time.Duration `koanf:"export_interval" validate:"gt=0"`
	ExportOffset       time.Duration `koanf:"export_offset" validate:"gte=0"`
	InitialDelay       time.Duration `koanf:"initial_delay" validate:"gte=0"`
	InitialExportDelay time.Duration `koanf:"initial_export_delay" validate:"gte=0"`
	Timezone           string        `koanf:"timezone"`
}

// Location resolves Timezone. Validate has already checked it loads.
func (s ScheduleConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SheetsEnabled reports whether spreadsheet credentials are configured.
func (c *Config) SheetsEnabled() bool {
	return c.Sheets.ServiceAccountEmail != "" && c.Sheets.PrivateKey != ""
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       5432,
			User:       "postgres",
			Password:   "postgres",
			Name:       "wb_tariffs",
			SSLMode:    "disable",
			MaxConns:   4,
			SQLitePath: "wb_tariffs.db",
		},
		Source: SourceConfig{
			BaseURL:           "https://common-api.wildberries.ru",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 1,
		},
		Schedule: ScheduleConfig{
			IngestInterval:     time.Hour,
			ExportInterval:     time.Hour,
			ExportOffset:       5 * time.Minute,
			InitialDelay:       5 * time.Second,
			InitialExportDelay: 3 * time.Second,
			Timezone:           "UTC",
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// String summarizes the config without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("db=%s source=%s sheets=%t targets=%d tz=%s http=%t",
		c.Database.Driver, c.Source.BaseURL, c.SheetsEnabled(),
		len(c.Sheets.SpreadsheetIDs), c.Schedule.Timezone, c.Server.Enabled)
}
