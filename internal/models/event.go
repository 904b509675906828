// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package models

import "time"

// RawEvent is one playback record from a streaming-history export file.
// Field names follow the export's JSON schema. Optional fields are pointers
// so that "absent" is distinguishable from an empty string: a music event
// carries the track fields and a podcast event the episode fields, never
// both.
type RawEvent struct {
	// Timestamp is the moment playback stopped, always UTC in the export.
	Timestamp time.Time `json:"ts" validate:"required"`

	// Platform identifies the client device/OS string.
	Platform *string `json:"platform"`

	// MsPlayed is the playback duration in milliseconds.
	MsPlayed int64 `json:"ms_played" validate:"gte=0"`

	// ConnCountry is the two-letter country code of the connection.
	ConnCountry *string `json:"conn_country"`

	// IPAddress is the client IP as recorded by the service.
	IPAddress *string `json:"ip_addr"`

	// Track metadata (music events only).
	TrackName  *string `json:"master_metadata_track_name"`
	ArtistName *string `json:"master_metadata_album_artist_name"`
	AlbumName  *string `json:"master_metadata_album_album_name"`
	TrackURI   *string `json:"spotify_track_uri"`

	// Episode metadata (podcast events only).
	EpisodeName *string `json:"episode_name"`
	ShowName    *string `json:"episode_show_name"`
	EpisodeURI  *string `json:"spotify_episode_uri"`

	// Playback context.
	ReasonStart      *string `json:"reason_start"`
	ReasonEnd        *string `json:"reason_end"`
	Shuffle          bool    `json:"shuffle"`
	Skipped          bool    `json:"skipped"`
	Offline          bool    `json:"offline"`
	OfflineTimestamp *int64  `json:"offline_timestamp"`
	IncognitoMode    bool    `json:"incognito_mode"`
}

// IsMusic reports whether the event references a music track.
func (e *RawEvent) IsMusic() bool {
	return e.TrackURI != nil && *e.TrackURI != ""
}

// IsPodcast reports whether the event references a podcast episode.
func (e *RawEvent) IsPodcast() bool {
	return e.EpisodeURI != nil && *e.EpisodeURI != ""
}

// ContentURI returns the track or episode URI, whichever is present.
// Returns an empty string for events that reference neither.
func (e *RawEvent) ContentURI() string {
	if e.IsMusic() {
		return *e.TrackURI
	}
	if e.IsPodcast() {
		return *e.EpisodeURI
	}
	return ""
}
