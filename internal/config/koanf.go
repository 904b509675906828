// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/melograph/config.yaml",
	"/etc/melograph/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "MELOGRAPH_CONFIG_PATH"

// envPrefix namespaces all environment variables consumed by the pipeline.
const envPrefix = "MELOGRAPH_"

// defaultConfig returns a Config with every default value. Defaults are
// applied first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Dir:    "data/raw",
			Strict: false,
		},
		Database: DatabaseConfig{
			Path:                   "data/melograph.duckdb",
			MaxMemory:              "1GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Geo: GeoConfig{
			Enabled:           false, // enrichment is opt-in and non-fatal
			Provider:          GeoProviderIPAPI,
			LookupTimeout:     10 * time.Second,
			RequestsPerMinute: 45, // ip-api free tier limit
			Workers:           4,
			Force:             false,
		},
		Validation: ValidationConfig{
			MaxPlayDuration: 24 * time.Hour,
			SampleSize:      5,
		},
		Export: ExportConfig{
			ParquetDir: "",
			ReportPath: "",
		},
		Metrics: MetricsConfig{
			Listen: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources: defaults, then an
// optional YAML file, then MELOGRAPH_* environment variables. The merged
// result is validated before being returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// MELOGRAPH_GEO_LOOKUP_TIMEOUT -> geo.lookup_timeout
	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransformFunc maps an environment variable name to a koanf path.
// The section is the first underscore-separated token; the rest is the key,
// which may itself contain underscores:
//
//	MELOGRAPH_INPUT_DIR              -> input.dir
//	MELOGRAPH_GEO_MAXMIND_ACCOUNT_ID -> geo.maxmind_account_id
func envTransformFunc(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
