package model

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the full runtime configuration for a validation run.
type Config struct {
	Plant       PlantConfig       `yaml:"plant" mapstructure:"plant"`
	CSV         CSVConfig         `yaml:"csv" mapstructure:"csv"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Exclusions  ExclusionsConfig  `yaml:"exclusions" mapstructure:"exclusions"`
	Database    DatabaseConfig    `yaml:"database" mapstructure:"database"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	SMTP        SMTPConfig        `yaml:"smtp" mapstructure:"smtp"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
}

// PlantConfig identifies the installation whose readings are validated.
type PlantConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Unit string `yaml:"unit" mapstructure:"unit"`

	// NominalPowerKW substitutes the $P_NOM placeholder in range rules.
	NominalPowerKW float64 `yaml:"nominal_power_kw" mapstructure:"nominal_power_kw"`

	// Columns is the run-wide ordered list of data columns after the
	// timestamp. Every ingested file must match it exactly.
	Columns []string `yaml:"columns" mapstructure:"columns"`
}

// CSVConfig describes the SCADA export files to ingest.
type CSVConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Separator string `yaml:"separator" mapstructure:"separator"`
	Encoding  string `yaml:"encoding" mapstructure:"encoding"` // "windows-1252" or "utf-8"

	// LegacyZeroAsBlank reproduces the historical cleaner that rewrote
	// literal zeros to blanks before validation. Off by default: zeros are
	// data and the not_positive_in_range rule exists to judge them.
	LegacyZeroAsBlank bool `yaml:"legacy_zero_as_blank" mapstructure:"legacy_zero_as_blank"`
}

// RulesConfig locates the declarative rule definitions.
type RulesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ExclusionsConfig describes the published exclusion worksheet.
type ExclusionsConfig struct {
	URL               string        `yaml:"url" mapstructure:"url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheDir          string        `yaml:"cache_dir" mapstructure:"cache_dir"`
	CacheTTL          time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `yaml:"burst" mapstructure:"burst"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Name     string `yaml:"name" mapstructure:"name"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL renders the postgres:// form used by the migration tooling.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// ExportConfig drives the Excel report writer.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Headers maps column names to display headers in the validated report.
	// Columns without an entry are emitted under their own name.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Daylight reporting window; rows outside it are left out of the error
	// report, matching the operator's review practice.
	WindowStart string `yaml:"window_start" mapstructure:"window_start"` // "07:00"
	WindowEnd   string `yaml:"window_end" mapstructure:"window_end"`     // "19:00"
}

// SMTPConfig configures the run-summary notifier. Empty Host disables it.
type SMTPConfig struct {
	Host     string   `yaml:"host" mapstructure:"host"`
	Port     int      `yaml:"port" mapstructure:"port"`
	User     string   `yaml:"user" mapstructure:"user"`
	Password string   `yaml:"password" mapstructure:"password"`
	From     string   `yaml:"from" mapstructure:"from"`
	To       []string `yaml:"to" mapstructure:"to"`
}

// ConcurrencyConfig bounds the engine's row-parallel evaluation.
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Plant: PlantConfig{
			Unit: "main",
		},
		CSV: CSVConfig{
			Separator: ";",
			Encoding:  "windows-1252",
		},
		Rules: RulesConfig{
			Path: "rules.json",
		},
		Exclusions: ExclusionsConfig{
			Timeout:           30 * time.Second,
			CacheTTL:          15 * time.Minute,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Export: ExportConfig{
			Dir:         "reports",
			WindowStart: "07:00",
			WindowEnd:   "19:00",
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
	}
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	if c.Plant.Name == "" {
		return fmt.Errorf("plant.name is required")
	}
	if len(c.Plant.Columns) == 0 {
		return fmt.Errorf("plant.columns must list at least one data column")
	}
	if c.Concurrency.Workers <= 0 {
		c.Concurrency.Workers = 1
	}
	return nil
}
