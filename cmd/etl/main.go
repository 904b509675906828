// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package main is the entry point for the melograph ETL binary.
//
// Melograph converts personal streaming-history exports (the JSON files a
// "download my data" request produces) into a star-schema dataset in
// DuckDB: five dimension tables plus a play-event fact table, with stable
// surrogate keys across reruns and an optional IP-geolocation enrichment
// stage.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (MELOGRAPH_* — e.g. MELOGRAPH_INPUT_DIR)
//   - Config file (config.yaml, or MELOGRAPH_CONFIG_PATH)
//   - Built-in defaults
//
// # Exit Codes
//
//	0  run completed, no skipped records, validation passed
//	2  run completed, but records were skipped or validation rules failed
//	1  run aborted (bad config, corrupt key registry, store failure, or a
//	   malformed record under input.strict)
//
// # Example Usage
//
// Minimal run over an export directory:
//
//	export MELOGRAPH_INPUT_DIR=~/spotify_export
//	export MELOGRAPH_DATABASE_PATH=./data/melograph.db
//	./melograph
//
// With ip-api.com enrichment and parquet output:
//
//	export MELOGRAPH_GEO_ENABLED=true
//	export MELOGRAPH_EXPORT_PARQUET_DIR=./out
//	./melograph
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/melograph/internal/config"
	"github.com/tomtom215/melograph/internal/database"
	"github.com/tomtom215/melograph/internal/geo"
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/pipeline"
)

// Exit codes. exitWarnings means the run completed but skipped records or
// failed validation rules; callers that need a pristine dataset treat it
// like a failure, cron jobs usually treat it like a success with findings.
const (
	exitClean    = 0
	exitFatal    = 1
	exitWarnings = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Error().Err(err).Msg("Failed to load configuration")
		return exitFatal
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("input_dir", cfg.Input.Dir).
		Str("db_path", cfg.Database.Path).
		Bool("geo_enabled", cfg.Geo.Enabled).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		startMetricsServer(cfg.Metrics.Listen)
	}

	store, err := database.New(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to open database")
		return exitFatal
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	summary, err := pipeline.New(cfg, store, buildProvider(&cfg.Geo)).Run(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Pipeline run failed")
		return exitFatal
	}

	if cfg.Export.ReportPath != "" {
		if err := writeReport(cfg.Export.ReportPath, summary); err != nil {
			logging.Error().Err(err).Msg("Failed to write validation report")
			return exitFatal
		}
	}

	if !summary.Clean() {
		logging.Warn().
			Int("malformed", summary.Ingest.Malformed).
			Int("dropped", summary.Fact.Dropped).
			Int("geo_failed", summary.Geo.Failed).
			Strs("failed_rules", summary.Report.FailedRules()).
			Msg("Run completed with warnings")
		return exitWarnings
	}

	logging.Info().Msg("Run completed clean")
	return exitClean
}

// buildProvider constructs the configured geo provider behind a circuit
// breaker, or nil when enrichment is disabled.
func buildProvider(cfg *config.GeoConfig) geo.Provider {
	if !cfg.Enabled {
		return nil
	}

	var provider geo.Provider
	switch cfg.Provider {
	case config.GeoProviderMaxMind:
		provider = geo.NewMaxMindProvider(cfg.MaxMindAccountID, cfg.MaxMindLicenseKey)
	default:
		provider = geo.NewIPAPIProvider(cfg.RequestsPerMinute)
	}

	if !provider.IsAvailable() {
		logging.Warn().
			Str("provider", provider.Name()).
			Msg("Geo provider not configured, locations stay unenriched")
	}
	return geo.NewBreakerProvider(provider)
}

// writeReport serializes the run summary (validation report included) to a
// JSON file.
func writeReport(path string, summary *pipeline.Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	// 0600: the report can contain raw IP addresses.
	return os.WriteFile(path, data, 0o600)
}

// startMetricsServer serves /metrics for the duration of the run. Scrapes
// racing process exit just miss; a run-scoped job is expected to be scraped
// by a push-through or a fast interval.
func startMetricsServer(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logging.Info().Str("listen", listen).Msg("Metrics endpoint started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Warn().Err(err).Msg("Metrics endpoint stopped")
		}
	}()
}
