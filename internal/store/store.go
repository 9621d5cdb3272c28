// Package store owns all mutable per-user and shared state: the memoized
// result tables, the per-user quota windows, the auth gate states, and the
// object cache backing oversized callback payloads.
//
// Design notes:
//   - No logging in the library; callers observe persistence failures via an
//     optional hook (Option pattern, defaults are side-effect free)
//   - Every table is guarded by its own RWMutex, and result-cache fetches are
//     deduplicated per key with singleflight, so two concurrent misses for
//     the same key produce one provider call and one quota charge
//   - All mutations write through to a Persister so the whole store is
//     restorable verbatim across restarts; an absent snapshot is a cold
//     start with empty tables
//   - Result-cache growth is unbounded by default. The dataset is a single
//     school's roster, so the entry universe is small and finite; a
//     max-entries bound with FIFO eviction is available as a seam for
//     deployments that restart rarely.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

// Persister is the write-through persistence boundary. Implementations must
// be safe for concurrent use. The store never reads from the Persister after
// construction; Restore replays a snapshot instead.
type Persister interface {
	SaveCacheEntry(ctx context.Context, kind CacheKind, key string, e CacheEntry) error
	DeleteCacheEntry(ctx context.Context, kind CacheKind, key string) error
	SaveQuota(ctx context.Context, userID string, q domain.QuotaState) error
	SaveAuth(ctx context.Context, userID string, a domain.AuthState) error
	SaveObject(ctx context.Context, token string, value json.RawMessage) error
}

// CacheKind names one of the result-cache tables.
type CacheKind string

// Result-cache tables.
const (
	KindGrade   CacheKind = "grade"
	KindClass   CacheKind = "class"
	KindStudent CacheKind = "student"
	KindSearch  CacheKind = "search"
	KindPhotos  CacheKind = "photos"
)

// CacheEntry is one memoized provider result. Found is false for cached
// negative lookups (the cache-positive-for-negative policy); Value is the
// JSON-encoded payload and is empty when Found is false.
type CacheEntry struct {
	Value json.RawMessage `json:"value,omitempty"`
	Found bool            `json:"found"`
}

// Snapshot is the serialized shape of the whole store, as produced by the
// persistence layer at load time. Nil maps are treated as empty.
type Snapshot struct {
	Cache   map[CacheKind]map[string]CacheEntry
	Quotas  map[string]domain.QuotaState
	Auth    map[string]domain.AuthState
	Objects map[string]json.RawMessage
}

// Option configures a Store.
type Option func(*Store)

// WithPersister installs the write-through persistence boundary. Without it
// the store is memory-only (used by tests).
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithQuotaLimit overrides the per-window charge limit. Values below 1 are
// ignored.
func WithQuotaLimit(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.quotaLimit = n
		}
	}
}

// WithQuotaWindow overrides the rolling window length. Non-positive values
// are ignored.
func WithQuotaWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.quotaWindow = d
		}
	}
}

// WithMaxEntries bounds each result-cache table to n entries with FIFO
// eviction. Zero (the default) disables eviction.
func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxEntries = n
		}
	}
}

// WithPersistFailureHook installs a callback invoked whenever a write-through
// fails. The in-memory mutation is kept either way; the hook exists so the
// caller can log the divergence.
func WithPersistFailureHook(fn func(error)) Option {
	return func(s *Store) {
		if fn != nil {
			s.persistFail = fn
		}
	}
}

// Store is the shared state container. Construct with New; the zero value is
// not usable. All methods are safe for concurrent use.
type Store struct {
	persist     Persister
	persistFail func(error)
	quotaLimit  int
	quotaWindow time.Duration
	maxEntries  int

	cacheMu sync.RWMutex
	cache   map[CacheKind]*table
	flight  singleflight.Group

	quotaMu sync.Mutex
	quotas  map[string]domain.QuotaState

	authMu sync.Mutex
	auth   map[string]domain.AuthState

	objMu   sync.RWMutex
	objects map[string]json.RawMessage
}

// table is one result-cache kind. order tracks insertion for FIFO eviction
// when a bound is configured.
type table struct {
	entries map[string]CacheEntry
	order   []string
}

// New constructs an empty Store with the default quota policy (30 charges
// per rolling 24 hours) and unbounded caches.
func New(opts ...Option) *Store {
	s := &Store{
		persistFail: func(error) {},
		quotaLimit:  30,
		quotaWindow: 24 * time.Hour,
		cache: map[CacheKind]*table{
			KindGrade:   {entries: map[string]CacheEntry{}},
			KindClass:   {entries: map[string]CacheEntry{}},
			KindStudent: {entries: map[string]CacheEntry{}},
			KindSearch:  {entries: map[string]CacheEntry{}},
			KindPhotos:  {entries: map[string]CacheEntry{}},
		},
		quotas:  map[string]domain.QuotaState{},
		auth:    map[string]domain.AuthState{},
		objects: map[string]json.RawMessage{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Restore replays a snapshot into the store. It is meant to be called once,
// before the store is shared; it does not write back to the Persister.
func (s *Store) Restore(snap Snapshot) {
	s.cacheMu.Lock()
	for kind, entries := range snap.Cache {
		t, ok := s.cache[kind]
		if !ok {
			continue
		}
		for key, e := range entries {
			if _, exists := t.entries[key]; !exists {
				t.order = append(t.order, key)
			}
			t.entries[key] = e
		}
	}
	s.cacheMu.Unlock()

	s.quotaMu.Lock()
	for user, q := range snap.Quotas {
		s.quotas[user] = q
	}
	s.quotaMu.Unlock()

	s.authMu.Lock()
	for user, a := range snap.Auth {
		s.auth[user] = a
	}
	s.authMu.Unlock()

	s.objMu.Lock()
	for token, v := range snap.Objects {
		s.objects[token] = v
	}
	s.objMu.Unlock()
}

// QuotaLimit returns the configured per-window charge limit.
func (s *Store) QuotaLimit() int { return s.quotaLimit }

// save* helpers funnel write-throughs past the optional persister and report
// failures to the hook without failing the in-memory mutation.

func (s *Store) saveCacheEntry(ctx context.Context, kind CacheKind, key string, e CacheEntry) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveCacheEntry(ctx, kind, key, e); err != nil {
		s.persistFail(err)
	}
}

func (s *Store) deleteCacheEntry(ctx context.Context, kind CacheKind, key string) {
	if s.persist == nil {
		return
	}
	if err := s.persist.DeleteCacheEntry(ctx, kind, key); err != nil {
		s.persistFail(err)
	}
}

func (s *Store) saveQuota(ctx context.Context, userID string, q domain.QuotaState) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveQuota(ctx, userID, q); err != nil {
		s.persistFail(err)
	}
}

func (s *Store) saveAuth(ctx context.Context, userID string, a domain.AuthState) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveAuth(ctx, userID, a); err != nil {
		s.persistFail(err)
	}
}

func (s *Store) saveObject(ctx context.Context, token string, v json.RawMessage) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveObject(ctx, token, v); err != nil {
		s.persistFail(err)
	}
}
