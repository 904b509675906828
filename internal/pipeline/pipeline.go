// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package pipeline orchestrates one end-to-end run: ingest the export
// files, reload the surrogate key registry, build and merge dimensions and
// facts, optionally enrich locations, validate, and export. Stages run
// sequentially; the stages themselves parallelize internally where it pays.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/melograph/internal/config"
	"github.com/tomtom215/melograph/internal/database"
	"github.com/tomtom215/melograph/internal/dimension"
	"github.com/tomtom215/melograph/internal/fact"
	"github.com/tomtom215/melograph/internal/geo"
	"github.com/tomtom215/melograph/internal/ingest"
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/metrics"
	"github.com/tomtom215/melograph/internal/models"
	"github.com/tomtom215/melograph/internal/registry"
	"github.com/tomtom215/melograph/internal/validate"
)

// Summary aggregates the stats of every stage of one run.
type Summary struct {
	Ingest     *ingest.Stats  `json:"ingest"`
	Fact       *fact.Stats    `json:"fact"`
	Geo        *geo.Stats     `json:"geo,omitempty"`
	Report     *models.Report `json:"report"`
	DurationMs int64          `json:"duration_ms"`
}

// Clean reports whether the run produced no skipped records, no failed
// geolocation lookups and a passing validation report. The caller maps
// this to the process exit code.
func (s *Summary) Clean() bool {
	if s.Ingest != nil && s.Ingest.Malformed > 0 {
		return false
	}
	if s.Fact != nil && s.Fact.Dropped > 0 {
		return false
	}
	if s.Geo != nil && s.Geo.Failed > 0 {
		return false
	}
	return s.Report != nil && s.Report.Passed()
}

// Pipeline wires the stages around one store.
type Pipeline struct {
	cfg      *config.Config
	store    *database.Store
	provider geo.Provider // nil disables enrichment
}

// New creates a pipeline. provider may be nil when enrichment is disabled.
func New(cfg *config.Config, store *database.Store, provider geo.Provider) *Pipeline {
	return &Pipeline{cfg: cfg, store: store, provider: provider}
}

// Run executes one full run and returns its summary. A non-nil error means
// the run aborted; a nil error with a failing report is a completed run
// over imperfect data.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	// Ingest.
	events, ingestStats, err := timed("ingest", func() ([]models.RawEvent, *ingest.Stats, error) {
		reader := ingest.NewReader(p.cfg.Input.Strict)
		return reader.ReadDir(ctx, p.cfg.Input.Dir)
	})
	if err != nil {
		return nil, fmt.Errorf("ingest stage: %w", err)
	}
	summary.Ingest = ingestStats

	// Dimensions. The registry is reloaded from the store first so keys
	// issued by earlier runs keep their values.
	reg := registry.New()
	tables, _, err := timed("dimensions", func() (*dimension.Tables, *struct{}, error) {
		if err := p.store.LoadRegistry(ctx, reg); err != nil {
			return nil, nil, err
		}
		return dimension.NewBuilder(reg).BuildAll(events), nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dimension stage: %w", err)
	}
	if err := p.mergeDimensions(ctx, tables); err != nil {
		return nil, fmt.Errorf("dimension stage: %w", err)
	}

	// Facts.
	factRows, factStats, err := timed("fact", func() ([]models.FactRow, *fact.Stats, error) {
		return fact.NewBuilder(reg, p.cfg.Input.Strict).Build(events)
	})
	if err != nil {
		return nil, fmt.Errorf("fact stage: %w", err)
	}
	summary.Fact = factStats
	if err := p.store.MergeFacts(ctx, factRows); err != nil {
		return nil, fmt.Errorf("fact stage: %w", err)
	}

	// Geo enrichment. Always runs: with enrichment disabled it still seeds
	// the enriched table so its schema is complete.
	geoStats, _, err := timed("enrich", func() (*geo.Stats, *struct{}, error) {
		enricher := geo.NewEnricher(p.store, p.provider, &p.cfg.Geo)
		stats, err := enricher.Run(ctx)
		return stats, nil, err
	})
	if err != nil {
		return nil, fmt.Errorf("enrich stage: %w", err)
	}
	summary.Geo = geoStats

	// Validation.
	report, _, err := timed("validate", func() (*models.Report, *struct{}, error) {
		r, err := validate.New(p.store, &p.cfg.Validation).Run(ctx)
		return r, nil, err
	})
	if err != nil {
		return nil, fmt.Errorf("validate stage: %w", err)
	}
	summary.Report = report

	// Optional parquet export.
	if p.cfg.Export.ParquetDir != "" {
		if err := p.store.ExportParquet(ctx, p.cfg.Export.ParquetDir); err != nil {
			return nil, fmt.Errorf("export stage: %w", err)
		}
	}

	summary.DurationMs = time.Since(start).Milliseconds()
	logging.Info().
		Int("events", len(events)).
		Int("fact_rows", summary.Fact.Rows).
		Bool("clean", summary.Clean()).
		Int64("duration_ms", summary.DurationMs).
		Msg("Pipeline run complete")

	return summary, nil
}

// mergeDimensions writes all five dimension tables.
func (p *Pipeline) mergeDimensions(ctx context.Context, t *dimension.Tables) error {
	if err := p.store.MergeDates(ctx, t.Dates); err != nil {
		return err
	}
	if err := p.store.MergeDevices(ctx, t.Devices); err != nil {
		return err
	}
	if err := p.store.MergeTracks(ctx, t.Tracks); err != nil {
		return err
	}
	if err := p.store.MergeEpisodes(ctx, t.Episodes); err != nil {
		return err
	}
	return p.store.MergeLocations(ctx, t.Locations)
}

// timed runs one stage and records its duration.
func timed[A, B any](stage string, fn func() (A, B, error)) (A, B, error) {
	start := time.Now()
	a, b, err := fn()
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	logging.Debug().Str("stage", stage).Dur("elapsed", time.Since(start)).Msg("Stage finished")
	return a, b, err
}
