// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/melograph/internal/models"
)

// SeedEnrichedLocations inserts a pending enriched row for every base
// location that has none yet. The enriched table is a strict superset of
// dim_location: even when enrichment is disabled or every lookup fails,
// downstream consumers can join against it.
func (s *Store) SeedEnrichedLocations(ctx context.Context) (int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO dim_location_enriched (location_id, ip_address, country, lookup_status, last_updated)
		SELECT l.location_id, l.ip_address, l.country, ?, ?
		FROM dim_location l
		WHERE NOT EXISTS (
			SELECT 1 FROM dim_location_enriched e WHERE e.location_id = l.location_id
		)`,
		string(models.LookupPending), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("seed enriched locations: %w", err)
	}
	return res.RowsAffected()
}

// LocationsToEnrich returns the enriched rows whose IPs still need a geo
// lookup. With force, previously failed and resolved rows are retried too;
// private-range rows are never re-attempted.
func (s *Store) LocationsToEnrich(ctx context.Context, force bool) ([]models.EnrichedLocationRow, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	query := `SELECT location_id, ip_address, country, lookup_status
		FROM dim_location_enriched
		WHERE lookup_status = ?`
	args := []any{string(models.LookupPending)}
	if force {
		query = `SELECT location_id, ip_address, country, lookup_status
			FROM dim_location_enriched
			WHERE lookup_status <> ?`
		args = []any{string(models.LookupPrivate)}
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select locations to enrich: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.EnrichedLocationRow
	for rows.Next() {
		var r models.EnrichedLocationRow
		var status string
		if err := rows.Scan(&r.LocationID, &r.IPAddress, &r.Country, &status); err != nil {
			return nil, err
		}
		r.LookupStatus = models.LookupStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertEnrichedLocation writes one enrichment outcome. Geo attributes are
// overwritten wholesale: the row reflects the most recent lookup, and a
// failed retry never erases fields a previous success filled in because
// failed outcomes carry a status update only.
func (s *Store) UpsertEnrichedLocation(ctx context.Context, row *models.EnrichedLocationRow) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if row.LastUpdated.IsZero() {
		row.LastUpdated = time.Now().UTC()
	}

	// Resolved lookups and private placeholders carry attributes; failed
	// lookups are status-only so they never erase earlier data.
	if row.LookupStatus == models.LookupResolved || row.LookupStatus == models.LookupPrivate {
		_, err := s.conn.ExecContext(ctx, `
			INSERT INTO dim_location_enriched (
				location_id, ip_address, country, city, region, isp,
				latitude, longitude, lookup_status, last_updated
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (location_id) DO UPDATE SET
				country = COALESCE(EXCLUDED.country, dim_location_enriched.country),
				city = EXCLUDED.city,
				region = EXCLUDED.region,
				isp = EXCLUDED.isp,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				lookup_status = EXCLUDED.lookup_status,
				last_updated = EXCLUDED.last_updated`,
			row.LocationID, row.IPAddress, row.Country, row.City, row.Region, row.ISP,
			row.Latitude, row.Longitude, string(row.LookupStatus), row.LastUpdated)
		if err != nil {
			return fmt.Errorf("upsert enriched location %d: %w", row.LocationID, err)
		}
		return nil
	}

	// Failed outcome: leave any existing attributes.
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO dim_location_enriched (location_id, ip_address, country, lookup_status, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			lookup_status = EXCLUDED.lookup_status,
			last_updated = EXCLUDED.last_updated`,
		row.LocationID, row.IPAddress, row.Country, string(row.LookupStatus), row.LastUpdated)
	if err != nil {
		return fmt.Errorf("mark enriched location %d %s: %w", row.LocationID, row.LookupStatus, err)
	}
	return nil
}

// EnrichmentStatusCounts returns row counts grouped by lookup_status. The
// validator reports these as informational coverage numbers.
func (s *Store) EnrichmentStatusCounts(ctx context.Context) (map[models.LookupStatus]int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx,
		"SELECT lookup_status, COUNT(*) FROM dim_location_enriched GROUP BY lookup_status")
	if err != nil {
		return nil, fmt.Errorf("enrichment status counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.LookupStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.LookupStatus(status)] = n
	}
	return counts, rows.Err()
}
