// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package dimension derives the star-schema dimensions from raw events.
//
// The natural-key extraction functions here are the single source of truth
// for how an event maps to a dimension row. The fact builder resolves its
// foreign keys through these same functions, which is what guarantees that
// every key a fact row references was registered by a dimension builder.
//
// Timezone policy: all calendar attributes are derived in UTC, the
// timezone of the export's timestamps. This is applied uniformly; no
// source-local conversion is ever attempted.
package dimension

import (
	"strings"
	"time"

	"github.com/tomtom215/melograph/internal/models"
	"github.com/tomtom215/melograph/internal/registry"
)

// Registry dimension identifiers. The date dimension does not appear here:
// its key is a deterministic smart key, not a registry allocation.
const (
	Device   = "device"
	Track    = "track"
	Episode  = "episode"
	Location = "location"
)

// DateKey derives the date dimension's smart key from a timestamp:
// YYYYMMDDHH in UTC. The same hour always yields the same key, so the date
// dimension is idempotent without registry state.
func DateKey(ts time.Time) int64 {
	u := ts.UTC()
	return int64(u.Year())*1_000_000 +
		int64(u.Month())*10_000 +
		int64(u.Day())*100 +
		int64(u.Hour())
}

// DateAttributes expands a timestamp into the full date dimension row.
func DateAttributes(ts time.Time) models.DateRow {
	u := ts.UTC()
	return models.DateRow{
		DateID:  DateKey(ts),
		Year:    u.Year(),
		Month:   int(u.Month()),
		Day:     u.Day(),
		Weekday: u.Weekday().String(),
		Hour:    u.Hour(),
	}
}

// DeviceKey extracts the device dimension's natural key (the raw platform
// string). Returns false when the event has no platform; such events are
// excluded from the dimension and keep a null device foreign key.
func DeviceKey(e *models.RawEvent) (registry.NaturalKey, bool) {
	if e.Platform == nil || *e.Platform == "" {
		return nil, false
	}
	return registry.NaturalKey{*e.Platform}, true
}

// TrackKey extracts the track dimension's natural key (the track URI).
func TrackKey(e *models.RawEvent) (registry.NaturalKey, bool) {
	if !e.IsMusic() {
		return nil, false
	}
	return registry.NaturalKey{*e.TrackURI}, true
}

// EpisodeKey extracts the episode dimension's natural key (the episode URI).
func EpisodeKey(e *models.RawEvent) (registry.NaturalKey, bool) {
	if !e.IsPodcast() {
		return nil, false
	}
	return registry.NaturalKey{*e.EpisodeURI}, true
}

// LocationKey extracts the location dimension's natural key: the raw IP
// address. IPs are kept verbatim (no masking); duplicates across events
// collapse to one dimension row.
func LocationKey(e *models.RawEvent) (registry.NaturalKey, bool) {
	if e.IPAddress == nil || *e.IPAddress == "" {
		return nil, false
	}
	return registry.NaturalKey{*e.IPAddress}, true
}

// ClassifyDevice buckets a platform string into a coarse device type.
func ClassifyDevice(platform string) string {
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "android") || strings.Contains(p, "ios"):
		return "mobile"
	case strings.Contains(p, "windows") || strings.Contains(p, "mac") || strings.Contains(p, "os x"):
		return "desktop"
	case strings.Contains(p, "web"):
		return "web"
	default:
		return "other"
	}
}
