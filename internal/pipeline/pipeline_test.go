// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/melograph/internal/config"
	"github.com/tomtom215/melograph/internal/database"
	"github.com/tomtom215/melograph/internal/models"
)

const exportBatchOne = `[
	{
		"ts": "2023-07-15T14:30:00Z",
		"platform": "Android OS 13",
		"ms_played": 215000,
		"conn_country": "DE",
		"ip_addr": "203.0.113.10",
		"master_metadata_track_name": "Harvest Moon",
		"master_metadata_album_artist_name": "Neil Young",
		"master_metadata_album_album_name": "Harvest Moon",
		"spotify_track_uri": "spotify:track:1aXbH5lqd7kBPfxpMC9NiK",
		"reason_start": "clickrow",
		"reason_end": "trackdone",
		"shuffle": true,
		"skipped": false,
		"offline": false,
		"incognito_mode": false
	},
	{
		"ts": "2023-07-15T15:10:00Z",
		"platform": "windows 10",
		"ms_played": 1800000,
		"conn_country": "DE",
		"ip_addr": "192.168.1.50",
		"episode_name": "Episode 42",
		"episode_show_name": "Some Show",
		"spotify_episode_uri": "spotify:episode:6kZpQx7w9JvNqYtR2sLmAa",
		"shuffle": false,
		"skipped": false,
		"offline": true,
		"incognito_mode": false
	}
]`

// Overlaps batch one's first event and adds a new one.
const exportBatchTwo = `[
	{
		"ts": "2023-07-15T14:30:00Z",
		"platform": "Android OS 13",
		"ms_played": 215000,
		"conn_country": "DE",
		"ip_addr": "203.0.113.10",
		"master_metadata_track_name": "Harvest Moon",
		"master_metadata_album_artist_name": "Neil Young",
		"master_metadata_album_album_name": "Harvest Moon",
		"spotify_track_uri": "spotify:track:1aXbH5lqd7kBPfxpMC9NiK",
		"shuffle": true,
		"skipped": false,
		"offline": false,
		"incognito_mode": false
	},
	{
		"ts": "2023-08-01T09:00:00Z",
		"platform": "web player chrome",
		"ms_played": 95000,
		"conn_country": "DE",
		"ip_addr": "203.0.113.10",
		"master_metadata_track_name": "Heart of Gold",
		"master_metadata_album_artist_name": "Neil Young",
		"master_metadata_album_album_name": "Harvest",
		"spotify_track_uri": "spotify:track:2aoYqa1gUxyTmbSgTnQ5o6",
		"shuffle": false,
		"skipped": true,
		"offline": false,
		"incognito_mode": false
	}
]`

func testConfig(t *testing.T, inputDir string) *config.Config {
	t.Helper()
	return &config.Config{
		Input: config.InputConfig{Dir: inputDir},
		Database: config.DatabaseConfig{
			Path:      filepath.Join(t.TempDir(), "melograph.db"),
			MaxMemory: "256MB",
			Threads:   2,
		},
		Geo: config.GeoConfig{Enabled: false},
		Validation: config.ValidationConfig{
			MaxPlayDuration: 24 * time.Hour,
			SampleSize:      5,
		},
	}
}

func writeExport(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write export file: %v", err)
	}
}

func openStore(t *testing.T, cfg *config.Config) *database.Store {
	t.Helper()
	s, err := database.New(&cfg.Database)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	return s
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "Streaming_History_Audio_2023_0.json", exportBatchOne)

	cfg := testConfig(t, dir)
	store := openStore(t, cfg)
	defer store.Close()

	summary, err := New(cfg, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Ingest.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", summary.Ingest.Accepted)
	}
	if summary.Fact.Rows != 2 {
		t.Errorf("fact rows = %d, want 2", summary.Fact.Rows)
	}
	if !summary.Clean() {
		t.Errorf("run should be clean, failed rules: %v", summary.Report.FailedRules())
	}

	ctx := context.Background()
	counts := map[string]int64{
		models.DimDate:             2,
		models.DimDevice:           2,
		models.DimTrack:            1,
		models.DimEpisode:          1,
		models.DimLocation:         2,
		models.DimLocationEnriched: 2,
		models.FactPlays:           2,
	}
	for table, want := range counts {
		got, err := store.TableCount(ctx, table)
		if err != nil {
			t.Fatalf("TableCount(%s) error = %v", table, err)
		}
		if got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "Streaming_History_Audio_2023_0.json", exportBatchOne)

	cfg := testConfig(t, dir)
	store := openStore(t, cfg)
	defer store.Close()

	p := New(cfg, store, nil)
	ctx := context.Background()

	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if !second.Clean() {
		t.Errorf("rerun should stay clean: %v", second.Report.FailedRules())
	}
	for _, table := range []string{
		models.DimDate, models.DimDevice, models.DimTrack,
		models.DimEpisode, models.DimLocation, models.FactPlays,
	} {
		got, err := store.TableCount(ctx, table)
		if err != nil {
			t.Fatalf("TableCount(%s) error = %v", table, err)
		}
		want := int64(2)
		if table == models.DimTrack || table == models.DimEpisode {
			want = 1
		}
		if got != want {
			t.Errorf("%s rows = %d after rerun, want %d", table, got, want)
		}
	}
}

func TestRunIncrementalKeepsKeys(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "Streaming_History_Audio_2023_0.json", exportBatchOne)

	cfg := testConfig(t, dir)
	store := openStore(t, cfg)
	defer store.Close()
	ctx := context.Background()

	p := New(cfg, store, nil)
	if _, err := p.Run(ctx); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// Second run sees the overlapping batch: one old track, one new.
	writeExport(t, dir, "Streaming_History_Audio_2023_1.json", exportBatchTwo)
	summary, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if summary.Fact.Duplicates == 0 {
		t.Error("overlapping batch should report in-batch duplicates on rerun ingest")
	}

	tracks, err := store.TableCount(ctx, models.DimTrack)
	if err != nil {
		t.Fatalf("TableCount() error = %v", err)
	}
	if tracks != 2 {
		t.Errorf("track rows = %d, want 2", tracks)
	}

	facts, err := store.TableCount(ctx, models.FactPlays)
	if err != nil {
		t.Fatalf("TableCount() error = %v", err)
	}
	if facts != 3 {
		t.Errorf("fact rows = %d, want 3 (2 originals + 1 new)", facts)
	}
}
