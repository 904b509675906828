// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package models

import "time"

// Dimension table names as persisted in the store. These double as the
// dimension identifiers used by the surrogate key registry.
const (
	DimDate             = "dim_date"
	DimDevice           = "dim_device"
	DimTrack            = "dim_track"
	DimEpisode          = "dim_episode"
	DimLocation         = "dim_location"
	DimLocationEnriched = "dim_location_enriched"
	FactPlays           = "fact_plays"
)

// DateRow is one row of the date dimension. DateID is a deterministic
// smart key (YYYYMMDDHH, UTC) rather than a registry-allocated surrogate:
// the same hour always maps to the same key, on every run.
type DateRow struct {
	DateID  int64  `json:"date_id"`
	Year    int    `json:"year"`
	Month   int    `json:"month"`
	Day     int    `json:"day"`
	Weekday string `json:"weekday"`
	Hour    int    `json:"hour"`
}

// DeviceRow is one row of the device dimension, keyed by the raw platform
// string with a derived coarse device classification.
type DeviceRow struct {
	DeviceID   int64  `json:"device_id"`
	Platform   string `json:"platform"`
	DeviceType string `json:"device_type"`
}

// TrackRow is one row of the track dimension, keyed by the track URI.
type TrackRow struct {
	TrackID    int64   `json:"track_id"`
	TrackURI   string  `json:"track_uri"`
	TrackName  *string `json:"track_name,omitempty"`
	ArtistName *string `json:"artist_name,omitempty"`
	AlbumName  *string `json:"album_name,omitempty"`
}

// EpisodeRow is one row of the episode dimension, keyed by the episode URI.
type EpisodeRow struct {
	EpisodeID   int64   `json:"episode_id"`
	EpisodeURI  string  `json:"episode_uri"`
	EpisodeName *string `json:"episode_name,omitempty"`
	ShowName    *string `json:"show_name,omitempty"`
}

// LocationRow is one row of the location dimension, keyed by the raw IP
// address. Duplicate IPs across many events collapse to one row.
type LocationRow struct {
	LocationID int64   `json:"location_id"`
	IPAddress  string  `json:"ip_address"`
	Country    *string `json:"country,omitempty"`
}

// LookupStatus records the enrichment state of a location row. The
// validator uses it to distinguish "never attempted" from "attempted and
// failed".
type LookupStatus string

const (
	// LookupPending means enrichment has not been attempted for this row.
	LookupPending LookupStatus = "pending"
	// LookupResolved means the geo database returned attributes for the IP.
	LookupResolved LookupStatus = "resolved"
	// LookupFailed means a lookup was attempted and did not resolve.
	LookupFailed LookupStatus = "failed"
	// LookupPrivate means the IP is in a private/LAN range and was never
	// sent to the geo database.
	LookupPrivate LookupStatus = "private"
)

// EnrichedLocationRow is one row of the enriched location dimension. It is
// a superset of LocationRow: the base dimension is preserved unmodified as
// a fallback artifact, and this table carries the geo attributes. Rows for
// unresolved IPs keep null enrichment fields.
type EnrichedLocationRow struct {
	LocationID   int64        `json:"location_id"`
	IPAddress    string       `json:"ip_address"`
	Country      *string      `json:"country,omitempty"`
	City         *string      `json:"city,omitempty"`
	Region       *string      `json:"region,omitempty"`
	ISP          *string      `json:"isp,omitempty"`
	Latitude     *float64     `json:"latitude,omitempty"`
	Longitude    *float64     `json:"longitude,omitempty"`
	LookupStatus LookupStatus `json:"lookup_status"`
	LastUpdated  time.Time    `json:"last_updated"`
}
