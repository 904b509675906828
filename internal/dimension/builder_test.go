// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package dimension

import (
	"testing"
	"time"

	"github.com/tomtom215/melograph/internal/models"
	"github.com/tomtom215/melograph/internal/registry"
)

func musicEvent(ts time.Time, uri, name, platform, ip string) models.RawEvent {
	return models.RawEvent{
		Timestamp:   ts,
		Platform:    strPtr(platform),
		IPAddress:   strPtr(ip),
		ConnCountry: strPtr("DE"),
		TrackURI:    strPtr(uri),
		TrackName:   strPtr(name),
		ArtistName:  strPtr("Artist"),
		AlbumName:   strPtr("Album"),
		MsPlayed:    180000,
	}
}

func TestBuildCollapsesDuplicateNaturalKeys(t *testing.T) {
	ts := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC)
	events := []models.RawEvent{
		musicEvent(ts, "spotify:track:a", "Song A", "android", "203.0.113.7"),
		musicEvent(ts.Add(5*time.Minute), "spotify:track:a", "Song A", "android", "203.0.113.7"),
		musicEvent(ts.Add(10*time.Minute), "spotify:track:b", "Song B", "android", "203.0.113.7"),
	}

	b := NewBuilder(registry.New())
	tables := b.BuildAll(events)

	if len(tables.Dates) != 1 {
		t.Errorf("dates = %d, want 1 (same hour)", len(tables.Dates))
	}
	if len(tables.Tracks) != 2 {
		t.Errorf("tracks = %d, want 2", len(tables.Tracks))
	}
	if len(tables.Devices) != 1 {
		t.Errorf("devices = %d, want 1", len(tables.Devices))
	}
	if len(tables.Locations) != 1 {
		t.Errorf("locations = %d, want 1", len(tables.Locations))
	}
	if len(tables.Episodes) != 0 {
		t.Errorf("episodes = %d, want 0 for music-only batch", len(tables.Episodes))
	}
}

func TestBuildExcludesRowsWithMissingFields(t *testing.T) {
	e := models.RawEvent{
		Timestamp: time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC),
		MsPlayed:  1000,
		// no platform, no IP, no content URI
	}

	b := NewBuilder(registry.New())
	tables := b.BuildAll([]models.RawEvent{e})

	if len(tables.Devices) != 0 || len(tables.Locations) != 0 ||
		len(tables.Tracks) != 0 || len(tables.Episodes) != 0 {
		t.Errorf("missing fields must not fabricate rows: %+v", tables)
	}
	if len(tables.Dates) != 1 {
		t.Errorf("dates = %d, want 1 (timestamp always present)", len(tables.Dates))
	}
}

func TestBuildKeysAreStableAcrossBatches(t *testing.T) {
	ts := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC)
	batchA := []models.RawEvent{
		musicEvent(ts, "spotify:track:a", "Song A", "android", "203.0.113.7"),
	}
	batchAB := []models.RawEvent{
		musicEvent(ts, "spotify:track:a", "Song A", "android", "203.0.113.7"),
		musicEvent(ts, "spotify:track:b", "Song B", "ios", "198.51.100.1"),
	}

	reg := registry.New()
	b := NewBuilder(reg)

	first := b.BuildTrack(batchA)
	keyA := first[0].TrackID

	// Rebuilding over a superset must not move track A's key.
	second := b.BuildTrack(batchAB)
	for _, row := range second {
		if row.TrackURI == "spotify:track:a" && row.TrackID != keyA {
			t.Errorf("track A key changed: %d -> %d", keyA, row.TrackID)
		}
	}
}

func TestBuildDeviceClassifies(t *testing.T) {
	ts := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC)
	events := []models.RawEvent{
		musicEvent(ts, "spotify:track:a", "A", "Android OS 13", "203.0.113.7"),
		musicEvent(ts, "spotify:track:b", "B", "Windows 10", "203.0.113.7"),
	}

	b := NewBuilder(registry.New())
	rows := b.BuildDevice(events)

	if len(rows) != 2 {
		t.Fatalf("devices = %d, want 2", len(rows))
	}
	types := map[string]string{}
	for _, r := range rows {
		types[r.Platform] = r.DeviceType
	}
	if types["Android OS 13"] != "mobile" {
		t.Errorf("Android classified as %q, want mobile", types["Android OS 13"])
	}
	if types["Windows 10"] != "desktop" {
		t.Errorf("Windows classified as %q, want desktop", types["Windows 10"])
	}
}
