// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Data-quality rule queries. Each rule counts offending rows and pulls a
// bounded sample of offending keys for diagnosis. The checks run against
// the persisted tables, not in-memory batches, so they catch corruption
// from prior runs too.
package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/melograph/internal/models"
)

// QualityCheck is one executable data-quality rule.
type QualityCheck struct {
	Rule        string
	Description string

	countSQL  string
	sampleSQL string
	args      []any
}

// QualityChecks returns the full rule battery. maxPlayMs is the sane upper
// bound for ms_played. The returned slice has a stable order; the report's
// schema depends on it.
func QualityChecks(maxPlayMs int64) []QualityCheck {
	checks := []QualityCheck{
		{
			Rule:        models.RuleFactDateIntegrity,
			Description: "every fact row references an existing date dimension row",
			countSQL: `SELECT COUNT(*) FROM fact_plays f
				LEFT JOIN dim_date d ON f.date_id = d.date_id
				WHERE d.date_id IS NULL`,
			sampleSQL: `SELECT f.event_id FROM fact_plays f
				LEFT JOIN dim_date d ON f.date_id = d.date_id
				WHERE d.date_id IS NULL LIMIT ?`,
		},
		{
			Rule:        models.RuleMsPlayedBounds,
			Description: "ms_played is non-negative and below the configured ceiling",
			countSQL:    `SELECT COUNT(*) FROM fact_plays WHERE ms_played < 0 OR ms_played > ?`,
			sampleSQL:   `SELECT event_id FROM fact_plays WHERE ms_played < 0 OR ms_played > ? LIMIT ?`,
			args:        []any{maxPlayMs},
		},
		{
			Rule:        models.RuleUniqueEventID,
			Description: "event IDs are unique across the fact table",
			countSQL: `SELECT COUNT(*) FROM (
				SELECT event_id FROM fact_plays GROUP BY event_id HAVING COUNT(*) > 1
			)`,
			sampleSQL: `SELECT event_id FROM fact_plays
				GROUP BY event_id HAVING COUNT(*) > 1 LIMIT ?`,
		},
		{
			Rule:        models.RuleUniqueSurrogateKeys,
			Description: "no natural key holds two surrogate keys in any dimension",
			countSQL: `SELECT COUNT(*) FROM (
				SELECT platform AS k FROM dim_device GROUP BY platform HAVING COUNT(*) > 1
				UNION ALL
				SELECT track_uri FROM dim_track GROUP BY track_uri HAVING COUNT(*) > 1
				UNION ALL
				SELECT episode_uri FROM dim_episode GROUP BY episode_uri HAVING COUNT(*) > 1
				UNION ALL
				SELECT ip_address FROM dim_location GROUP BY ip_address HAVING COUNT(*) > 1
			)`,
			sampleSQL: `SELECT k FROM (
				SELECT platform AS k FROM dim_device GROUP BY platform HAVING COUNT(*) > 1
				UNION ALL
				SELECT track_uri FROM dim_track GROUP BY track_uri HAVING COUNT(*) > 1
				UNION ALL
				SELECT episode_uri FROM dim_episode GROUP BY episode_uri HAVING COUNT(*) > 1
				UNION ALL
				SELECT ip_address FROM dim_location GROUP BY ip_address HAVING COUNT(*) > 1
			) LIMIT ?`,
		},
		{
			Rule:        models.RuleDateConsistency,
			Description: "date dimension attributes agree with the smart key",
			countSQL: `SELECT COUNT(*) FROM dim_date
				WHERE date_id <> year * 1000000 + month * 10000 + day * 100 + hour
				   OR weekday <> dayname(make_date(year, month, day))`,
			sampleSQL: `SELECT CAST(date_id AS VARCHAR) FROM dim_date
				WHERE date_id <> year * 1000000 + month * 10000 + day * 100 + hour
				   OR weekday <> dayname(make_date(year, month, day)) LIMIT ?`,
		},
		{
			Rule:        models.RuleContentExclusivity,
			Description: "no fact row references both a track and an episode",
			countSQL:    `SELECT COUNT(*) FROM fact_plays WHERE track_id IS NOT NULL AND episode_id IS NOT NULL`,
			sampleSQL:   `SELECT event_id FROM fact_plays WHERE track_id IS NOT NULL AND episode_id IS NOT NULL LIMIT ?`,
		},
	}

	// Optional foreign keys: null is fine, dangling is not.
	optionalFKs := []struct {
		rule, desc, fk, dim, pk string
	}{
		{models.RuleFactDeviceIntegrity, "every non-null device reference resolves", "device_id", "dim_device", "device_id"},
		{models.RuleFactTrackIntegrity, "every non-null track reference resolves", "track_id", "dim_track", "track_id"},
		{models.RuleFactEpisodeIntegrity, "every non-null episode reference resolves", "episode_id", "dim_episode", "episode_id"},
		{models.RuleFactLocationIntegrity, "every non-null location reference resolves", "location_id", "dim_location", "location_id"},
	}
	for _, fk := range optionalFKs {
		where := fmt.Sprintf("f.%s IS NOT NULL AND d.%s IS NULL", fk.fk, fk.pk)
		join := fmt.Sprintf("LEFT JOIN %s d ON f.%s = d.%s", fk.dim, fk.fk, fk.pk)
		checks = append(checks, QualityCheck{
			Rule:        fk.rule,
			Description: fk.desc,
			countSQL:    fmt.Sprintf("SELECT COUNT(*) FROM fact_plays f %s WHERE %s", join, where),
			sampleSQL:   fmt.Sprintf("SELECT f.event_id FROM fact_plays f %s WHERE %s LIMIT ?", join, where),
		})
	}

	return checks
}

// RunQualityCheck executes one rule, returning the offending-row count and
// up to sampleLimit offending keys.
func (s *Store) RunQualityCheck(ctx context.Context, check QualityCheck, sampleLimit int) (models.RuleResult, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	result := models.RuleResult{
		Rule:        check.Rule,
		Description: check.Description,
	}

	if err := s.conn.QueryRowContext(ctx, check.countSQL, check.args...).Scan(&result.FailedRows); err != nil {
		return result, fmt.Errorf("rule %s count: %w", check.Rule, err)
	}
	result.Passed = result.FailedRows == 0

	if result.FailedRows > 0 && sampleLimit > 0 {
		args := append(append([]any{}, check.args...), sampleLimit)
		rows, err := s.conn.QueryContext(ctx, check.sampleSQL, args...)
		if err != nil {
			return result, fmt.Errorf("rule %s samples: %w", check.Rule, err)
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return result, err
			}
			result.Samples = append(result.Samples, key)
		}
		if err := rows.Err(); err != nil {
			return result, err
		}
	}

	return result, nil
}
