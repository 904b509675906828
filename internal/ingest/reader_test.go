// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validMusicRecord = `{
	"ts": "2023-07-15T13:30:52Z",
	"platform": "android",
	"ms_played": 180000,
	"conn_country": "DE",
	"ip_addr": "203.0.113.7",
	"master_metadata_track_name": "Song A",
	"master_metadata_album_artist_name": "Artist",
	"master_metadata_album_album_name": "Album",
	"spotify_track_uri": "spotify:track:abc",
	"reason_start": "trackdone",
	"reason_end": "trackdone",
	"shuffle": true,
	"skipped": false,
	"offline": false,
	"incognito_mode": false
}`

const validPodcastRecord = `{
	"ts": "2023-07-16T08:00:00Z",
	"platform": "ios",
	"ms_played": 900000,
	"conn_country": "DE",
	"ip_addr": "203.0.113.7",
	"episode_name": "Episode 1",
	"episode_show_name": "Some Show",
	"spotify_episode_uri": "spotify:episode:xyz",
	"shuffle": false,
	"skipped": false,
	"offline": false,
	"incognito_mode": false
}`

func writeExport(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing %s: %v", name, err)
	}
	return path
}

func TestReadDirAcceptsValidRecords(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "history_0.json", "["+validMusicRecord+","+validPodcastRecord+"]")

	events, stats, err := NewReader(false).ReadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}

	if stats.Accepted != 2 || stats.Malformed != 0 {
		t.Errorf("stats = %+v, want 2 accepted, 0 malformed", stats)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if !events[0].IsMusic() {
		t.Error("first event should be music")
	}
	if !events[1].IsPodcast() {
		t.Error("second event should be podcast")
	}
}

func TestReadDirEmptyDirectoryIsAnError(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := NewReader(false).ReadDir(context.Background(), dir); err == nil {
		t.Error("expected error for directory without export files")
	}
}

func TestLenientPolicySkipsAndCountsMalformed(t *testing.T) {
	dir := t.TempDir()
	// Second record has a negative ms_played, third is missing ts,
	// fourth carries both URIs.
	content := "[" + validMusicRecord + "," +
		`{"ts": "2023-07-15T14:00:00Z", "ms_played": -1}` + "," +
		`{"ms_played": 100}` + "," +
		`{"ts": "2023-07-15T15:00:00Z", "ms_played": 100,
		  "spotify_track_uri": "spotify:track:a", "spotify_episode_uri": "spotify:episode:b"}` +
		"]"
	writeExport(t, dir, "history_0.json", content)

	events, stats, err := NewReader(false).ReadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("lenient reader should not fail: %v", err)
	}

	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.Accepted != 1 || len(events) != 1 {
		t.Errorf("Accepted = %d (events %d), want 1", stats.Accepted, len(events))
	}
	if stats.Malformed != 3 {
		t.Errorf("Malformed = %d, want 3", stats.Malformed)
	}
	if len(stats.Samples) != 3 {
		t.Errorf("Samples = %d, want 3", len(stats.Samples))
	}
}

func TestStrictPolicyFailsOnFirstMalformed(t *testing.T) {
	dir := t.TempDir()
	content := "[" + validMusicRecord + "," + `{"ms_played": 100}` + "]"
	writeExport(t, dir, "history_0.json", content)

	_, _, err := NewReader(true).ReadDir(context.Background(), dir)
	if err == nil {
		t.Fatal("strict reader should fail on malformed record")
	}
	if !errors.Is(err, ErrMalformedInput) {
		t.Errorf("error should wrap ErrMalformedInput, got %v", err)
	}
}

func TestZeroMsPlayedIsAccepted(t *testing.T) {
	dir := t.TempDir()
	content := `[{"ts": "2023-07-15T13:30:52Z", "ms_played": 0,
		"shuffle": false, "skipped": false, "offline": false, "incognito_mode": false}]`
	writeExport(t, dir, "history_0.json", content)

	events, stats, err := NewReader(false).ReadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if stats.Accepted != 1 || len(events) != 1 {
		t.Errorf("zero ms_played with all flags false must be accepted, stats = %+v", stats)
	}
}

func TestNonArrayFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "history_0.json", `{"not": "an array"}`)

	if _, _, err := NewReader(false).ReadDir(context.Background(), dir); err == nil {
		t.Error("expected error for non-array export file")
	}
}

func TestFilesAreReadInLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "history_1.json", "["+validPodcastRecord+"]")
	writeExport(t, dir, "history_0.json", "["+validMusicRecord+"]")

	events, _, err := NewReader(false).ReadDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if !events[0].IsMusic() {
		t.Error("history_0.json should be read before history_1.json")
	}
}
