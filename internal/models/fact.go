// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package models

import "github.com/google/uuid"

// FactRow is one play event in the fact table. EventID is a deterministic
// content-derived UUID so that re-running the pipeline over the same export
// merges rather than duplicates rows.
//
// Foreign keys are nullable: TrackID and EpisodeID are mutually exclusive
// (an event is either music or a podcast episode), and DeviceID/LocationID
// are null when the export omitted the field. DateID is mandatory; events
// without a usable timestamp never reach the fact table.
type FactRow struct {
	EventID       uuid.UUID `json:"event_id"`
	DateID        int64     `json:"date_id"`
	DeviceID      *int64    `json:"device_id,omitempty"`
	TrackID       *int64    `json:"track_id,omitempty"`
	EpisodeID     *int64    `json:"episode_id,omitempty"`
	LocationID    *int64    `json:"location_id,omitempty"`
	MsPlayed      int64     `json:"ms_played"`
	Skipped       bool      `json:"skipped"`
	Shuffle       bool      `json:"shuffle"`
	Offline       bool      `json:"offline"`
	IncognitoMode bool      `json:"incognito_mode"`
}
