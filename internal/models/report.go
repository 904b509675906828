// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package models

import "time"

// Rule names emitted by the validator. These are part of the report's
// stable schema; downstream consumers key on them.
const (
	RuleFactDateIntegrity     = "fact_date_fk_integrity"
	RuleFactDeviceIntegrity   = "fact_device_fk_integrity"
	RuleFactTrackIntegrity    = "fact_track_fk_integrity"
	RuleFactEpisodeIntegrity  = "fact_episode_fk_integrity"
	RuleFactLocationIntegrity = "fact_location_fk_integrity"
	RuleMsPlayedBounds        = "ms_played_bounds"
	RuleUniqueEventID         = "unique_event_id"
	RuleUniqueSurrogateKeys   = "unique_surrogate_keys"
	RuleDateConsistency       = "date_attribute_consistency"
	RuleContentExclusivity    = "track_episode_exclusivity"
	RuleEnrichmentCoverage    = "enrichment_coverage"
)

// RuleResult is the outcome of a single data-quality rule.
type RuleResult struct {
	// Rule is the stable rule identifier.
	Rule string `json:"rule"`

	// Description explains what the rule checks.
	Description string `json:"description"`

	// Passed is true when no offending rows were found.
	Passed bool `json:"passed"`

	// Informational rules report counts without failing the run.
	Informational bool `json:"informational,omitempty"`

	// FailedRows is the number of offending rows.
	FailedRows int64 `json:"failed_rows"`

	// Samples holds up to a handful of offending keys for diagnosis.
	Samples []string `json:"samples,omitempty"`
}

// Report is the validator's output for one pipeline run. It is derived
// entirely from the persisted tables and has no identity beyond the run.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Results     []RuleResult `json:"results"`
}

// Passed reports whether every non-informational rule passed.
func (r *Report) Passed() bool {
	for i := range r.Results {
		if !r.Results[i].Passed && !r.Results[i].Informational {
			return false
		}
	}
	return true
}

// FailedRules returns the names of non-informational rules that failed.
func (r *Report) FailedRules() []string {
	var failed []string
	for i := range r.Results {
		if !r.Results[i].Passed && !r.Results[i].Informational {
			failed = append(failed, r.Results[i].Rule)
		}
	}
	return failed
}
