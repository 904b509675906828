// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/melograph/internal/dimension"
	"github.com/tomtom215/melograph/internal/logging"
	"github.com/tomtom215/melograph/internal/registry"
)

// LoadRegistry reloads every registry-backed dimension's surrogate-to-
// natural mappings from the persisted tables into the registry. Called
// once before each run so previously issued keys survive the rerun.
// Corrupt persisted state surfaces as registry.ErrRegistryCorrupt.
func (s *Store) LoadRegistry(ctx context.Context, reg *registry.Registry) error {
	loaders := []struct {
		dim   string
		query string
	}{
		{dimension.Device, "SELECT device_id, platform FROM dim_device"},
		{dimension.Track, "SELECT track_id, track_uri FROM dim_track"},
		{dimension.Episode, "SELECT episode_id, episode_uri FROM dim_episode"},
		{dimension.Location, "SELECT location_id, ip_address FROM dim_location"},
	}

	for _, l := range loaders {
		keys, err := s.loadPersistedKeys(ctx, l.query)
		if err != nil {
			return fmt.Errorf("load %s keys: %w", l.dim, err)
		}
		if err := reg.LoadDimension(l.dim, keys); err != nil {
			return err
		}
		logging.Debug().Str("dimension", l.dim).Int("keys", len(keys)).Msg("Registry dimension loaded")
	}
	return nil
}

// loadPersistedKeys reads (surrogate, natural) pairs for one dimension.
// Every registry-backed dimension has a single-attribute natural key.
func (s *Store) loadPersistedKeys(ctx context.Context, query string) ([]registry.PersistedKey, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []registry.PersistedKey
	for rows.Next() {
		var surrogate int64
		var natural string
		if err := rows.Scan(&surrogate, &natural); err != nil {
			return nil, err
		}
		keys = append(keys, registry.PersistedKey{
			Surrogate: surrogate,
			Natural:   registry.NaturalKey{natural},
		})
	}
	return keys, rows.Err()
}
