// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package models

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestRawEventKind(t *testing.T) {
	t.Run("music event", func(t *testing.T) {
		e := RawEvent{TrackURI: strPtr("spotify:track:abc123")}
		if !e.IsMusic() {
			t.Error("expected IsMusic() = true")
		}
		if e.IsPodcast() {
			t.Error("expected IsPodcast() = false")
		}
		if got := e.ContentURI(); got != "spotify:track:abc123" {
			t.Errorf("ContentURI() = %q, want track URI", got)
		}
	})

	t.Run("podcast event", func(t *testing.T) {
		e := RawEvent{EpisodeURI: strPtr("spotify:episode:xyz789")}
		if e.IsMusic() {
			t.Error("expected IsMusic() = false")
		}
		if !e.IsPodcast() {
			t.Error("expected IsPodcast() = true")
		}
		if got := e.ContentURI(); got != "spotify:episode:xyz789" {
			t.Errorf("ContentURI() = %q, want episode URI", got)
		}
	})

	t.Run("neither music nor podcast", func(t *testing.T) {
		e := RawEvent{}
		if e.IsMusic() || e.IsPodcast() {
			t.Error("empty event should be neither music nor podcast")
		}
		if got := e.ContentURI(); got != "" {
			t.Errorf("ContentURI() = %q, want empty", got)
		}
	})

	t.Run("empty URI strings are treated as absent", func(t *testing.T) {
		e := RawEvent{TrackURI: strPtr(""), EpisodeURI: strPtr("")}
		if e.IsMusic() || e.IsPodcast() {
			t.Error("empty URI strings should not count as present")
		}
	})
}

func TestReportPassed(t *testing.T) {
	t.Run("all rules pass", func(t *testing.T) {
		r := Report{
			GeneratedAt: time.Now(),
			Results: []RuleResult{
				{Rule: RuleUniqueEventID, Passed: true},
				{Rule: RuleMsPlayedBounds, Passed: true},
			},
		}
		if !r.Passed() {
			t.Error("expected Passed() = true")
		}
		if failed := r.FailedRules(); len(failed) != 0 {
			t.Errorf("FailedRules() = %v, want empty", failed)
		}
	})

	t.Run("one rule fails", func(t *testing.T) {
		r := Report{
			Results: []RuleResult{
				{Rule: RuleUniqueEventID, Passed: true},
				{Rule: RuleFactDateIntegrity, Passed: false, FailedRows: 3},
			},
		}
		if r.Passed() {
			t.Error("expected Passed() = false")
		}
		failed := r.FailedRules()
		if len(failed) != 1 || failed[0] != RuleFactDateIntegrity {
			t.Errorf("FailedRules() = %v, want [%s]", failed, RuleFactDateIntegrity)
		}
	})

	t.Run("informational failures do not fail the report", func(t *testing.T) {
		r := Report{
			Results: []RuleResult{
				{Rule: RuleEnrichmentCoverage, Passed: false, Informational: true, FailedRows: 10},
			},
		}
		if !r.Passed() {
			t.Error("informational rule should not fail the report")
		}
	})
}
