// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package validate runs the data-quality rule battery over the persisted
// star schema and assembles the run report. The rule set and its order are
// fixed; consumers key on rule names, so renaming one is a breaking change.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/melograph/internal/config"
	"github.com/tomtom215/melograph/internal/database"
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/metrics"
	"github.com/tomtom215/melograph/internal/models"
)

// Validator runs the rule battery against a store.
type Validator struct {
	store *database.Store
	cfg   *config.ValidationConfig
}

// New creates a validator.
func New(store *database.Store, cfg *config.ValidationConfig) *Validator {
	return &Validator{store: store, cfg: cfg}
}

// Run executes every rule and returns the report. Rule violations are
// reported, not returned as errors; the error covers query failures only.
func (v *Validator) Run(ctx context.Context) (*models.Report, error) {
	report := &models.Report{GeneratedAt: time.Now().UTC()}

	maxPlayMs := v.cfg.MaxPlayDuration.Milliseconds()
	for _, check := range database.QualityChecks(maxPlayMs) {
		result, err := v.store.RunQualityCheck(ctx, check, v.cfg.SampleSize)
		if err != nil {
			return nil, fmt.Errorf("quality rule %s: %w", check.Rule, err)
		}

		metrics.ValidationRuleFailures.WithLabelValues(result.Rule).Set(float64(result.FailedRows))
		if !result.Passed {
			logging.Warn().
				Str("rule", result.Rule).
				Int64("failed_rows", result.FailedRows).
				Strs("samples", result.Samples).
				Msg("Data-quality rule failed")
		}
		report.Results = append(report.Results, result)
	}

	coverage, err := v.enrichmentCoverage(ctx)
	if err != nil {
		return nil, err
	}
	report.Results = append(report.Results, coverage)

	logging.Info().
		Int("rules", len(report.Results)).
		Bool("passed", report.Passed()).
		Msg("Validation complete")

	return report, nil
}

// enrichmentCoverage reports how many location rows remain unenriched.
// Informational: partial coverage is the designed outcome of graceful
// degradation, not a defect.
func (v *Validator) enrichmentCoverage(ctx context.Context) (models.RuleResult, error) {
	result := models.RuleResult{
		Rule:          models.RuleEnrichmentCoverage,
		Description:   "location rows with pending or failed geo lookups",
		Informational: true,
		Passed:        true,
	}

	counts, err := v.store.EnrichmentStatusCounts(ctx)
	if err != nil {
		return result, fmt.Errorf("quality rule %s: %w", result.Rule, err)
	}

	unresolved := counts[models.LookupPending] + counts[models.LookupFailed]
	result.FailedRows = unresolved
	result.Passed = unresolved == 0
	for _, status := range []models.LookupStatus{
		models.LookupPending, models.LookupResolved,
		models.LookupFailed, models.LookupPrivate,
	} {
		if n := counts[status]; n > 0 {
			result.Samples = append(result.Samples, fmt.Sprintf("%s=%d", status, n))
		}
	}

	metrics.ValidationRuleFailures.WithLabelValues(result.Rule).Set(float64(unresolved))
	return result, nil
}
