// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestLookupOrCreateAllocatesDenseKeys(t *testing.T) {
	r := New()

	first := r.LookupOrCreate("device", NaturalKey{"android"})
	second := r.LookupOrCreate("device", NaturalKey{"ios"})
	third := r.LookupOrCreate("device", NaturalKey{"windows"})

	if first != BaseKey {
		t.Errorf("first key = %d, want %d", first, BaseKey)
	}
	if second != BaseKey+1 || third != BaseKey+2 {
		t.Errorf("keys not dense: got %d, %d, %d", first, second, third)
	}
}

func TestLookupOrCreateIsStable(t *testing.T) {
	r := New()
	key := NaturalKey{"spotify:track:abc"}

	k1 := r.LookupOrCreate("track", key)
	k2 := r.LookupOrCreate("track", key)
	if k1 != k2 {
		t.Errorf("same natural key got two surrogates: %d and %d", k1, k2)
	}
}

func TestDimensionsAreIndependentKeySpaces(t *testing.T) {
	r := New()

	d := r.LookupOrCreate("device", NaturalKey{"android"})
	l := r.LookupOrCreate("location", NaturalKey{"203.0.113.7"})

	if d != BaseKey || l != BaseKey {
		t.Errorf("each dimension should start at BaseKey: device=%d location=%d", d, l)
	}
}

func TestNaturalKeyComparedByFullTuple(t *testing.T) {
	r := New()

	a := r.LookupOrCreate("track", NaturalKey{"uri", "name-a"})
	b := r.LookupOrCreate("track", NaturalKey{"uri", "name-b"})
	if a == b {
		t.Error("tuples differing in one attribute must get distinct keys")
	}
}

func TestLookupDoesNotAllocate(t *testing.T) {
	r := New()

	if _, ok := r.Lookup("device", NaturalKey{"android"}); ok {
		t.Error("Lookup on empty registry should miss")
	}
	if r.Count("device") != 0 {
		t.Errorf("Lookup must not allocate, count = %d", r.Count("device"))
	}

	want := r.LookupOrCreate("device", NaturalKey{"android"})
	got, ok := r.Lookup("device", NaturalKey{"android"})
	if !ok || got != want {
		t.Errorf("Lookup = (%d, %v), want (%d, true)", got, ok, want)
	}
}

func TestLoadDimensionMergesAndContinuesNumbering(t *testing.T) {
	r := New()

	persisted := []PersistedKey{
		{Surrogate: 1, Natural: NaturalKey{"android"}},
		{Surrogate: 2, Natural: NaturalKey{"ios"}},
		{Surrogate: 5, Natural: NaturalKey{"linux"}}, // gap from a past run
	}
	if err := r.LoadDimension("device", persisted); err != nil {
		t.Fatalf("LoadDimension returned error: %v", err)
	}

	// Persisted keys are returned unchanged.
	if got := r.LookupOrCreate("device", NaturalKey{"ios"}); got != 2 {
		t.Errorf("persisted key changed: got %d, want 2", got)
	}

	// New keys continue past the highest persisted surrogate.
	if got := r.LookupOrCreate("device", NaturalKey{"web player"}); got != 6 {
		t.Errorf("new key = %d, want 6", got)
	}
}

func TestLoadDimensionIsIdempotent(t *testing.T) {
	r := New()
	persisted := []PersistedKey{{Surrogate: 1, Natural: NaturalKey{"android"}}}

	if err := r.LoadDimension("device", persisted); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if err := r.LoadDimension("device", persisted); err != nil {
		t.Errorf("reloading identical state should succeed, got %v", err)
	}
}

func TestLoadDimensionDetectsCorruption(t *testing.T) {
	tests := []struct {
		name string
		keys []PersistedKey
	}{
		{
			name: "surrogate below base",
			keys: []PersistedKey{{Surrogate: 0, Natural: NaturalKey{"android"}}},
		},
		{
			name: "duplicate surrogate for different natural keys",
			keys: []PersistedKey{
				{Surrogate: 1, Natural: NaturalKey{"android"}},
				{Surrogate: 1, Natural: NaturalKey{"ios"}},
			},
		},
		{
			name: "duplicate natural key with different surrogates",
			keys: []PersistedKey{
				{Surrogate: 1, Natural: NaturalKey{"android"}},
				{Surrogate: 2, Natural: NaturalKey{"android"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			err := r.LoadDimension("device", tt.keys)
			if err == nil {
				t.Fatal("expected corruption error")
			}
			if !errors.Is(err, ErrRegistryCorrupt) {
				t.Errorf("error should wrap ErrRegistryCorrupt, got %v", err)
			}
		})
	}
}

func TestConcurrentAllocationNeverRaces(t *testing.T) {
	r := New()
	const workers = 16
	const keysPerWorker = 200

	var wg sync.WaitGroup
	results := make([][]int64, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			results[w] = make([]int64, keysPerWorker)
			for i := 0; i < keysPerWorker; i++ {
				// All workers hammer the same key set.
				results[w][i] = r.LookupOrCreate("location", NaturalKey{fmt.Sprintf("198.51.100.%d", i)})
			}
		}(w)
	}
	wg.Wait()

	// Every worker must have observed the same key for the same IP.
	for w := 1; w < workers; w++ {
		for i := 0; i < keysPerWorker; i++ {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d got key %d for ip %d, worker 0 got %d",
					w, results[w][i], i, results[0][i])
			}
		}
	}

	if got := r.Count("location"); got != keysPerWorker {
		t.Errorf("Count = %d, want %d", got, keysPerWorker)
	}
}

func TestSnapshotRoundTrips(t *testing.T) {
	r := New()
	r.LookupOrCreate("track", NaturalKey{"spotify:track:b"})
	r.LookupOrCreate("track", NaturalKey{"spotify:track:a"})

	snap := r.Snapshot("track")
	if len(snap) != 2 {
		t.Fatalf("Snapshot returned %d keys, want 2", len(snap))
	}
	if snap[0].Surrogate != 1 || snap[1].Surrogate != 2 {
		t.Errorf("snapshot not sorted by surrogate: %+v", snap)
	}

	// A registry loaded from a snapshot behaves identically.
	r2 := New()
	if err := r2.LoadDimension("track", snap); err != nil {
		t.Fatalf("LoadDimension() error = %v", err)
	}
	id, ok := r2.Lookup("track", NaturalKey{"spotify:track:a"})
	if !ok || id != 2 {
		t.Errorf("Lookup after reload = (%d, %v), want (2, true)", id, ok)
	}

	if r.Snapshot("unknown") != nil {
		t.Error("Snapshot of an unknown dimension should be nil")
	}
}
