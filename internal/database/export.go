// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/models"
)

// exportTables lists every table emitted by ExportParquet, in a stable
// order so repeated exports produce the same file set.
var exportTables = []string{
	models.DimDate,
	models.DimDevice,
	models.DimTrack,
	models.DimEpisode,
	models.DimLocation,
	models.DimLocationEnriched,
	models.FactPlays,
}

// ExportParquet writes every table to <dir>/<table>.parquet with ZSTD
// compression. Files are ordered by primary key so reruns over identical
// data produce identical files.
func (s *Store) ExportParquet(ctx context.Context, dir string) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	orderBy := map[string]string{
		models.DimDate:             "date_id",
		models.DimDevice:           "device_id",
		models.DimTrack:            "track_id",
		models.DimEpisode:          "episode_id",
		models.DimLocation:         "location_id",
		models.DimLocationEnriched: "location_id",
		models.FactPlays:           "event_id",
	}

	for _, table := range exportTables {
		path := filepath.Join(dir, table+".parquet")
		// #nosec G201 -- table and key names come from package constants.
		query := fmt.Sprintf(`
			COPY (SELECT * FROM %s ORDER BY %s) TO ? (
				FORMAT PARQUET,
				COMPRESSION 'ZSTD'
			)`, table, orderBy[table])

		if _, err := s.conn.ExecContext(ctx, query, path); err != nil {
			return fmt.Errorf("failed to export %s: %w", table, err)
		}
		logging.Debug().Str("table", table).Str("path", path).Msg("Table exported")
	}

	logging.Info().Str("dir", dir).Int("tables", len(exportTables)).Msg("Parquet export complete")
	return nil
}
