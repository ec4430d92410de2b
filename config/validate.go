package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks field tags plus rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	checks := []func() error{
		c.validateDatabase,
		c.validateSchedule,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("database: host and name are required for postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("database: sqlite_path is required for sqlite")
		}
	}
	return nil
}

func (c *Config) validateSchedule() error {
	s := c.Schedule
	if s.IngestOffset >= s.IngestInterval {
		return fmt.Errorf("schedule: ingest_offset %s must be shorter than ingest_interval %s", s.IngestOffset, s.IngestInterval)
	}
	if s.ExportOffset >= s.ExportInterval {
		return fmt.Errorf("schedule: export_offset %s must be shorter than export_interval %s", s.ExportOffset, s.ExportInterval)
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("schedule: invalid timezone %q: %w", s.Timezone, err)
		}
	}
	return nil
}
