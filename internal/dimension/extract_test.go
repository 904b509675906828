// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package dimension

import (
	"testing"
	"time"

	"github.com/tomtom215/melograph/internal/models"
)

func strPtr(s string) *string { return &s }

func TestDateKey(t *testing.T) {
	ts := time.Date(2023, 7, 15, 13, 30, 52, 0, time.UTC)
	if got := DateKey(ts); got != 2023071513 {
		t.Errorf("DateKey = %d, want 2023071513", got)
	}
}

func TestDateKeyNormalizesToUTC(t *testing.T) {
	// 23:30 UTC-2 is 01:30 UTC the next day.
	loc := time.FixedZone("UTC-2", -2*60*60)
	ts := time.Date(2023, 7, 15, 23, 30, 0, 0, loc)

	if got := DateKey(ts); got != 2023071601 {
		t.Errorf("DateKey = %d, want 2023071601 (UTC policy)", got)
	}
}

func TestDateAttributesConsistency(t *testing.T) {
	ts := time.Date(2023, 7, 15, 13, 0, 0, 0, time.UTC) // a Saturday
	row := DateAttributes(ts)

	if row.DateID != 2023071513 {
		t.Errorf("DateID = %d, want 2023071513", row.DateID)
	}
	if row.Year != 2023 || row.Month != 7 || row.Day != 15 || row.Hour != 13 {
		t.Errorf("attributes = %+v, inconsistent with DateID", row)
	}
	if row.Weekday != "Saturday" {
		t.Errorf("Weekday = %s, want Saturday", row.Weekday)
	}
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		platform string
		want     string
	}{
		{"Android OS 13 API 33 (samsung, SM-S901B)", "mobile"},
		{"iOS 16.5 (iPhone14,5)", "mobile"},
		{"Windows 10 (10.0.19045; x64)", "desktop"},
		{"OS X 13.4.1 [arm 2]", "desktop"},
		{"web_player windows 10;chrome 114.0.0.0", "desktop"}, // windows wins over web
		{"web_player linux", "web"},
		{"Linux [x86-64 0]", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		if got := ClassifyDevice(tt.platform); got != tt.want {
			t.Errorf("ClassifyDevice(%q) = %q, want %q", tt.platform, got, tt.want)
		}
	}
}

func TestExtractionReturnsFalseForMissingFields(t *testing.T) {
	e := models.RawEvent{Timestamp: time.Now()}

	if _, ok := DeviceKey(&e); ok {
		t.Error("DeviceKey should miss without platform")
	}
	if _, ok := TrackKey(&e); ok {
		t.Error("TrackKey should miss without track URI")
	}
	if _, ok := EpisodeKey(&e); ok {
		t.Error("EpisodeKey should miss without episode URI")
	}
	if _, ok := LocationKey(&e); ok {
		t.Error("LocationKey should miss without IP")
	}
}

func TestTrackAndEpisodeKeysAreExclusive(t *testing.T) {
	music := models.RawEvent{TrackURI: strPtr("spotify:track:abc")}
	if _, ok := TrackKey(&music); !ok {
		t.Error("TrackKey should hit for music event")
	}
	if _, ok := EpisodeKey(&music); ok {
		t.Error("EpisodeKey should miss for music event")
	}

	podcast := models.RawEvent{EpisodeURI: strPtr("spotify:episode:xyz")}
	if _, ok := EpisodeKey(&podcast); !ok {
		t.Error("EpisodeKey should hit for podcast event")
	}
	if _, ok := TrackKey(&podcast); ok {
		t.Error("TrackKey should miss for podcast event")
	}
}
