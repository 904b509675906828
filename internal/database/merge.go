// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/metrics"
	"github.com/tomtom215/melograph/internal/models"
)

// MergeDates inserts date dimension rows, skipping keys already present.
// Attributes derive deterministically from the smart key, so an existing
// row is always identical to the incoming one.
func (s *Store) MergeDates(ctx context.Context, rows []models.DateRow) error {
	return s.mergeBatch(ctx, models.DimDate, len(rows),
		`INSERT INTO dim_date (date_id, year, month, day, weekday, hour)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (date_id) DO NOTHING`,
		func(stmt *sql.Stmt, i int) error {
			r := &rows[i]
			_, err := stmt.ExecContext(ctx, r.DateID, r.Year, r.Month, r.Day, r.Weekday, r.Hour)
			return err
		})
}

// MergeDevices upserts device dimension rows keyed by surrogate key.
// Re-runs refresh the derived device_type in place.
func (s *Store) MergeDevices(ctx context.Context, rows []models.DeviceRow) error {
	return s.mergeBatch(ctx, models.DimDevice, len(rows),
		`INSERT INTO dim_device (device_id, platform, device_type)
		 VALUES (?, ?, ?)
		 ON CONFLICT (device_id) DO UPDATE SET
			device_type = EXCLUDED.device_type`,
		func(stmt *sql.Stmt, i int) error {
			r := &rows[i]
			_, err := stmt.ExecContext(ctx, r.DeviceID, r.Platform, r.DeviceType)
			return err
		})
}

// MergeTracks upserts track dimension rows. Descriptive attributes are
// refreshed on conflict so a later export can fill fields an earlier one
// left null. The URI itself never changes for a given key.
func (s *Store) MergeTracks(ctx context.Context, rows []models.TrackRow) error {
	return s.mergeBatch(ctx, models.DimTrack, len(rows),
		`INSERT INTO dim_track (track_id, track_uri, track_name, artist_name, album_name)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (track_id) DO UPDATE SET
			track_name = COALESCE(EXCLUDED.track_name, dim_track.track_name),
			artist_name = COALESCE(EXCLUDED.artist_name, dim_track.artist_name),
			album_name = COALESCE(EXCLUDED.album_name, dim_track.album_name)`,
		func(stmt *sql.Stmt, i int) error {
			r := &rows[i]
			_, err := stmt.ExecContext(ctx, r.TrackID, r.TrackURI, r.TrackName, r.ArtistName, r.AlbumName)
			return err
		})
}

// MergeEpisodes upserts episode dimension rows.
func (s *Store) MergeEpisodes(ctx context.Context, rows []models.EpisodeRow) error {
	return s.mergeBatch(ctx, models.DimEpisode, len(rows),
		`INSERT INTO dim_episode (episode_id, episode_uri, episode_name, show_name)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (episode_id) DO UPDATE SET
			episode_name = COALESCE(EXCLUDED.episode_name, dim_episode.episode_name),
			show_name = COALESCE(EXCLUDED.show_name, dim_episode.show_name)`,
		func(stmt *sql.Stmt, i int) error {
			r := &rows[i]
			_, err := stmt.ExecContext(ctx, r.EpisodeID, r.EpisodeURI, r.EpisodeName, r.ShowName)
			return err
		})
}

// MergeLocations upserts base location dimension rows. This table is the
// pre-enrichment artifact and is preserved as-is even when enrichment runs.
func (s *Store) MergeLocations(ctx context.Context, rows []models.LocationRow) error {
	return s.mergeBatch(ctx, models.DimLocation, len(rows),
		`INSERT INTO dim_location (location_id, ip_address, country)
		 VALUES (?, ?, ?)
		 ON CONFLICT (location_id) DO UPDATE SET
			country = COALESCE(EXCLUDED.country, dim_location.country)`,
		func(stmt *sql.Stmt, i int) error {
			r := &rows[i]
			_, err := stmt.ExecContext(ctx, r.LocationID, r.IPAddress, r.Country)
			return err
		})
}

// MergeFacts inserts fact rows, silently skipping event IDs that are
// already present. Duplicates are the expected outcome of overlapping
// exports, not an error.
func (s *Store) MergeFacts(ctx context.Context, rows []models.FactRow) error {
	return s.mergeBatch(ctx, models.FactPlays, len(rows),
		`INSERT INTO fact_plays (
			event_id, date_id, device_id, track_id, episode_id, location_id,
			ms_played, skipped, shuffle, offline, incognito_mode
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		func(stmt *sql.Stmt, i int) error {
			r := &rows[i]
			_, err := stmt.ExecContext(ctx,
				r.EventID.String(), r.DateID, r.DeviceID, r.TrackID, r.EpisodeID, r.LocationID,
				r.MsPlayed, r.Skipped, r.Shuffle, r.Offline, r.IncognitoMode)
			return err
		})
}

// mergeBatch runs one prepared merge statement per row inside a single
// transaction. A batch either lands completely or not at all.
func (s *Store) mergeBatch(ctx context.Context, table string, n int, query string, bind func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}

	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge into %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare merge into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < n; i++ {
		if err := bind(stmt, i); err != nil {
			return fmt.Errorf("merge row %d into %s: %w", i, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge into %s: %w", table, err)
	}

	metrics.RowsMerged.WithLabelValues(table).Add(float64(n))
	logging.Debug().Str("table", table).Int("rows", n).Msg("Batch merged")
	return nil
}
