// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package config loads and validates the pipeline configuration using
// Koanf v2 with layered sources (highest priority wins):
//
//  1. Environment variables (MELOGRAPH_ prefix)
//  2. Optional YAML config file (config.yaml, or MELOGRAPH_CONFIG_PATH)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the complete pipeline configuration.
type Config struct {
	Input      InputConfig      `koanf:"input"`
	Database   DatabaseConfig   `koanf:"database"`
	Geo        GeoConfig        `koanf:"geo"`
	Validation ValidationConfig `koanf:"validation"`
	Export     ExportConfig     `koanf:"export"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// InputConfig describes where raw export files come from and how strictly
// malformed records are treated.
type InputConfig struct {
	// Dir is the directory containing the *.json export files.
	Dir string `koanf:"dir"`

	// Strict aborts the run on the first malformed record instead of
	// counting and skipping it.
	Strict bool `koanf:"strict"`
}

// DatabaseConfig tunes the DuckDB store holding the star-schema tables.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// GeoConfig controls the optional location-enrichment stage.
type GeoConfig struct {
	// Enabled turns the enrichment stage on. The stage is non-fatal either
	// way: lookup failures leave rows unenriched.
	Enabled bool `koanf:"enabled"`

	// Provider selects the geo database: "ip-api" (free, no key) or
	// "maxmind" (GeoLite2 web service, requires credentials).
	Provider string `koanf:"provider"`

	MaxMindAccountID  string `koanf:"maxmind_account_id"`
	MaxMindLicenseKey string `koanf:"maxmind_license_key"`

	// LookupTimeout bounds each individual lookup.
	LookupTimeout time.Duration `koanf:"lookup_timeout"`

	// RequestsPerMinute paces provider calls (ip-api free tier allows 45).
	RequestsPerMinute int `koanf:"requests_per_minute"`

	// Workers is the number of concurrent lookup workers.
	Workers int `koanf:"workers"`

	// Force re-queries IPs that already have a resolved enrichment row.
	Force bool `koanf:"force"`
}

// ValidationConfig tunes the data-quality rule battery.
type ValidationConfig struct {
	// MaxPlayDuration is the sane upper bound for ms_played.
	MaxPlayDuration time.Duration `koanf:"max_play_duration"`

	// SampleSize is the number of offending keys reported per failed rule.
	SampleSize int `koanf:"sample_size"`
}

// ExportConfig controls optional run artifacts.
type ExportConfig struct {
	// ParquetDir, when set, exports every table as parquet after the run.
	ParquetDir string `koanf:"parquet_dir"`

	// ReportPath, when set, writes the validation report as JSON.
	ReportPath string `koanf:"report_path"`
}

// MetricsConfig controls the optional Prometheus endpoint served for the
// duration of the run.
type MetricsConfig struct {
	// Listen is the address for /metrics, e.g. ":9090". Empty disables it.
	Listen string `koanf:"listen"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// GeoProvider names accepted by GeoConfig.Provider.
const (
	GeoProviderIPAPI   = "ip-api"
	GeoProviderMaxMind = "maxmind"
)

// Validate checks the configuration for internally inconsistent or missing
// values. It is called by Load after all layers are merged.
func (c *Config) Validate() error {
	if c.Input.Dir == "" {
		return fmt.Errorf("input.dir is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Geo.Enabled {
		switch c.Geo.Provider {
		case GeoProviderIPAPI:
			// no credentials needed
		case GeoProviderMaxMind:
			if c.Geo.MaxMindAccountID == "" || c.Geo.MaxMindLicenseKey == "" {
				return fmt.Errorf("geo.provider %q requires geo.maxmind_account_id and geo.maxmind_license_key", c.Geo.Provider)
			}
		default:
			return fmt.Errorf("geo.provider must be %q or %q, got %q", GeoProviderIPAPI, GeoProviderMaxMind, c.Geo.Provider)
		}

		if c.Geo.LookupTimeout <= 0 {
			return fmt.Errorf("geo.lookup_timeout must be positive")
		}
		if c.Geo.Workers < 1 {
			return fmt.Errorf("geo.workers must be >= 1")
		}
		if c.Geo.RequestsPerMinute < 1 {
			return fmt.Errorf("geo.requests_per_minute must be >= 1")
		}
	}

	if c.Validation.MaxPlayDuration <= 0 {
		return fmt.Errorf("validation.max_play_duration must be positive")
	}
	if c.Validation.SampleSize < 0 {
		return fmt.Errorf("validation.sample_size must be >= 0")
	}

	return nil
}
