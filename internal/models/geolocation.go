// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package models

import "time"

// Geolocation is the result of an IP-geolocation lookup. Optional fields
// are pointers because providers return partial data for many IPs.
type Geolocation struct {
	IPAddress   string    `json:"ip_address"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	City        *string   `json:"city,omitempty"`
	Region      *string   `json:"region,omitempty"`
	Country     string    `json:"country"`
	ISP         *string   `json:"isp,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}
