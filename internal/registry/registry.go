// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package registry implements the surrogate key registry: the mapping from
// a dimension's natural key (the full attribute tuple that identifies a
// row's meaning) to a stable integer surrogate key.
//
// The registry is the only state carried across pipeline runs. It is
// reloaded from the persisted dimension tables before each run, so that a
// natural value keeps its surrogate key forever: repeated full-history
// exports and incremental exports compose without disturbing fact-table
// references. Keys are dense, monotonically increasing integers starting
// at BaseKey, allocated on first encounter under a mutex so concurrent
// builders cannot race two keys for one natural value.
//
// Corruption of the persisted state (duplicate surrogate keys, two
// surrogates for one natural key, keys below the base) is fatal by design:
// silently reallocating keys would corrupt every historical fact reference.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BaseKey is the first surrogate key allocated in every dimension.
const BaseKey int64 = 1

// ErrRegistryCorrupt indicates the persisted key state is inconsistent.
// Callers must abort the run rather than continue with re-keyed dimensions.
var ErrRegistryCorrupt = errors.New("surrogate key registry state is corrupt")

// keySeparator joins natural key attributes into a canonical string.
// The unit separator cannot appear in export field values.
const keySeparator = "\x1f"

// NaturalKey is the ordered attribute tuple identifying one dimension row.
// Keys are compared by the full tuple, never by a single field.
type NaturalKey []string

// canonical returns the canonical string form used for map lookups.
func (k NaturalKey) canonical() string {
	return strings.Join(k, keySeparator)
}

// String returns a readable form for logs and error messages.
func (k NaturalKey) String() string {
	return strings.Join(k, "|")
}

// PersistedKey is one surrogate-to-natural mapping read back from a
// persisted dimension table.
type PersistedKey struct {
	Surrogate int64
	Natural   NaturalKey
}

// dimensionSpace holds the key state for a single dimension.
type dimensionSpace struct {
	byNatural   map[string]int64
	bySurrogate map[int64]string
	next        int64
}

func newDimensionSpace() *dimensionSpace {
	return &dimensionSpace{
		byNatural:   make(map[string]int64),
		bySurrogate: make(map[int64]string),
		next:        BaseKey,
	}
}

// Registry maps natural keys to surrogate keys, one independent key space
// per dimension. All methods are safe for concurrent use.
type Registry struct {
	mu   sync.Mutex
	dims map[string]*dimensionSpace
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{dims: make(map[string]*dimensionSpace)}
}

// space returns the key space for a dimension, creating it if needed.
// Must be called with mu held.
func (r *Registry) space(dimension string) *dimensionSpace {
	ds, ok := r.dims[dimension]
	if !ok {
		ds = newDimensionSpace()
		r.dims[dimension] = ds
	}
	return ds
}

// LookupOrCreate returns the surrogate key for the natural key, allocating
// the next unused key on first encounter. Allocation is serialized so the
// same natural key can never receive two different surrogates.
func (r *Registry) LookupOrCreate(dimension string, key NaturalKey) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds := r.space(dimension)
	canonical := key.canonical()
	if surrogate, ok := ds.byNatural[canonical]; ok {
		return surrogate
	}

	surrogate := ds.next
	ds.next++
	ds.byNatural[canonical] = surrogate
	ds.bySurrogate[surrogate] = canonical
	return surrogate
}

// Lookup returns the surrogate key for the natural key without allocating.
// The second return is false when the key has never been registered.
func (r *Registry) Lookup(dimension string, key NaturalKey) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.dims[dimension]
	if !ok {
		return 0, false
	}
	surrogate, ok := ds.byNatural[key.canonical()]
	return surrogate, ok
}

// LoadDimension merges persisted mappings into the registry before a run.
// It verifies the invariants of the persisted state and returns an error
// wrapping ErrRegistryCorrupt on any violation: a surrogate below BaseKey,
// the same surrogate bound to two natural keys, or the same natural key
// bound to two surrogates.
func (r *Registry) LoadDimension(dimension string, keys []PersistedKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds := r.space(dimension)
	for _, pk := range keys {
		if pk.Surrogate < BaseKey {
			return fmt.Errorf("%w: dimension %s has surrogate key %d below base %d",
				ErrRegistryCorrupt, dimension, pk.Surrogate, BaseKey)
		}

		canonical := pk.Natural.canonical()

		if existing, ok := ds.bySurrogate[pk.Surrogate]; ok && existing != canonical {
			return fmt.Errorf("%w: dimension %s surrogate key %d maps to both %q and %q",
				ErrRegistryCorrupt, dimension, pk.Surrogate, existing, pk.Natural.String())
		}
		if existing, ok := ds.byNatural[canonical]; ok && existing != pk.Surrogate {
			return fmt.Errorf("%w: dimension %s natural key %q maps to both %d and %d",
				ErrRegistryCorrupt, dimension, pk.Natural.String(), existing, pk.Surrogate)
		}

		ds.byNatural[canonical] = pk.Surrogate
		ds.bySurrogate[pk.Surrogate] = canonical
		if pk.Surrogate >= ds.next {
			ds.next = pk.Surrogate + 1
		}
	}
	return nil
}

// Snapshot returns every mapping in a dimension, sorted by surrogate key.
// Used for diagnostics and for asserting key stability in tests.
func (r *Registry) Snapshot(dimension string) []PersistedKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.dims[dimension]
	if !ok {
		return nil
	}

	keys := make([]PersistedKey, 0, len(ds.bySurrogate))
	for surrogate, canonical := range ds.bySurrogate {
		keys = append(keys, PersistedKey{
			Surrogate: surrogate,
			Natural:   NaturalKey(strings.Split(canonical, keySeparator)),
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Surrogate < keys[j].Surrogate })
	return keys
}

// Count returns the number of registered keys in a dimension.
func (r *Registry) Count(dimension string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.dims[dimension]
	if !ok {
		return 0
	}
	return len(ds.byNatural)
}
