// Package store – result cache
//
// The result cache memoizes external search-provider lookups per entity
// kind. Entries are never re-fetched or invalidated for the lifetime of the
// process or the persisted snapshot: staleness is a deliberate tradeoff that
// conserves the per-user quota. Negative results ("not found") are cached
// with the same lifetime so a confirmed-absent entity costs the provider
// exactly one call.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// FetchFunc loads a value from the external provider. found=false with a nil
// error means the entity is confirmed absent and is cached as a negative
// entry. A non-nil error is not cached.
type FetchFunc[T any] func(ctx context.Context) (value T, found bool, err error)

// Lookup is the outcome of GetOrFetch.
type Lookup[T any] struct {
	Value T
	// Found is false for (possibly cached) negative results.
	Found bool
	// Hit is true when the result came from the cache without a provider
	// call. Callers charge quota only when Hit is false.
	Hit bool
}

// GetOrFetch returns the memoized value for (kind, key), calling fetch on a
// miss and caching the outcome, including negative results. Concurrent
// misses for the same key are collapsed into a single fetch, and only the
// caller whose closure performed the provider call observes Hit=false; the
// collapsed waiters see a hit. Quota is therefore charged exactly once per
// provider call actually made.
//
// It is a function rather than a method because Go methods cannot introduce
// type parameters.
func GetOrFetch[T any](ctx context.Context, s *Store, kind CacheKind, key string, fetch FetchFunc[T]) (Lookup[T], error) {
	if e, ok := s.peek(kind, key); ok {
		return decodeEntry[T](e, true)
	}

	// Only the closure that singleflight elects actually runs, so fetched
	// stays false for collapsed waiters.
	fetched := false
	flightKey := string(kind) + "\x00" + key
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		// Double-check under the flight: another caller may have stored
		// the entry between our peek and the flight acquisition.
		if e, ok := s.peek(kind, key); ok {
			return lookupFromEntry(e, true), nil
		}
		fetched = true
		value, found, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		e := CacheEntry{Found: found}
		if found {
			b, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("cache %s/%s: encode: %w", kind, key, err)
			}
			e.Value = b
		}
		s.put(ctx, kind, key, e)
		return lookupFromEntry(e, false), nil
	})
	if err != nil {
		var zero Lookup[T]
		return zero, err
	}
	raw := v.(rawLookup)
	if !fetched {
		raw.hit = true
	}
	return decodeRaw[T](raw)
}

// WarmStudent opportunistically populates the student-by-id table from a
// record already contained in another result. Existing entries win; warming
// never overwrites and never counts as a provider call.
func (s *Store) WarmStudent(ctx context.Context, id string, value any) {
	if id == "" {
		return
	}
	if _, ok := s.peek(KindStudent, id); ok {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.put(ctx, KindStudent, id, CacheEntry{Value: b, Found: true})
}

// CacheLen returns the number of entries in one table. Used by tests and the
// limits report.
func (s *Store) CacheLen(kind CacheKind) int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	t, ok := s.cache[kind]
	if !ok {
		return 0
	}
	return len(t.entries)
}

// rawLookup carries an entry across the singleflight boundary without the
// type parameter.
type rawLookup struct {
	entry CacheEntry
	hit   bool
}

func lookupFromEntry(e CacheEntry, hit bool) rawLookup {
	return rawLookup{entry: e, hit: hit}
}

func decodeRaw[T any](raw rawLookup) (Lookup[T], error) {
	return decodeEntry[T](raw.entry, raw.hit)
}

func decodeEntry[T any](e CacheEntry, hit bool) (Lookup[T], error) {
	out := Lookup[T]{Hit: hit, Found: e.Found}
	if !e.Found {
		return out, nil
	}
	if err := json.Unmarshal(e.Value, &out.Value); err != nil {
		return Lookup[T]{}, fmt.Errorf("cache decode: %w", err)
	}
	return out, nil
}

func (s *Store) peek(kind CacheKind, key string) (CacheEntry, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	t, ok := s.cache[kind]
	if !ok {
		return CacheEntry{}, false
	}
	e, ok := t.entries[key]
	return e, ok
}

func (s *Store) put(ctx context.Context, kind CacheKind, key string, e CacheEntry) {
	s.cacheMu.Lock()
	t, ok := s.cache[kind]
	if !ok {
		s.cacheMu.Unlock()
		return
	}
	if _, exists := t.entries[key]; !exists {
		t.order = append(t.order, key)
	}
	t.entries[key] = e

	var evicted []string
	if s.maxEntries > 0 {
		for len(t.entries) > s.maxEntries && len(t.order) > 0 {
			oldest := t.order[0]
			if oldest == key {
				// Never evict the entry just written.
				break
			}
			t.order = t.order[1:]
			if _, ok := t.entries[oldest]; ok {
				delete(t.entries, oldest)
				evicted = append(evicted, oldest)
			}
		}
	}
	s.cacheMu.Unlock()

	s.saveCacheEntry(ctx, kind, key, e)
	for _, k := range evicted {
		s.deleteCacheEntry(ctx, kind, k)
	}
}
