// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements webhook update deduplication. Bot platforms redeliver
// an update when the webhook does not acknowledge in time, so the same
// update ID can arrive more than once; processing it twice would double
// replies and double quota charges. The Deduper remembers recently seen IDs
// in a TTL map and the handlers drop anything it has already seen.
//
// An ID is claimed on first sight, before processing, so concurrent
// redeliveries of the same update cannot both run. When processing then
// fails transiently the handler releases the claim with Forget, and the next
// redelivery is answered for real.
//
// The window is process-local. A redelivery after a restart slips through,
// which is acceptable: the result cache makes the second processing cheap
// and replies are idempotent from the user's point of view.
package middleware

import (
	"sync"
	"time"
)

// Deduper remembers recently seen webhook update IDs. It is safe for
// concurrent use. Idle entries are evicted opportunistically during lookups,
// so memory stays bounded by the TTL and the update rate.
type Deduper struct {
	ttl time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time
	lookups uint64
	now     func() time.Time
}

// NewDeduper constructs a Deduper with the given remember window. TTLs <= 0
// are coerced to 10 minutes.
func NewDeduper(ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Deduper{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records the update ID and reports whether it was already present
// within the TTL window. The first call for an ID returns false; subsequent
// calls within the window return true.
func (d *Deduper) Seen(updateID string) bool {
	if updateID == "" {
		return false
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Opportunistic cleanup every ~5000 lookups, before touching the
	// requested entry so an aged-out ID is not refreshed into a duplicate.
	d.lookups++
	if d.lookups >= 5000 {
		for id, at := range d.seen {
			if now.Sub(at) >= d.ttl {
				delete(d.seen, id)
			}
		}
		d.lookups = 0
	}

	at, ok := d.seen[updateID]
	if ok && now.Sub(at) < d.ttl {
		return true
	}
	d.seen[updateID] = now
	return false
}

// Forget drops an update ID so the platform's redelivery is processed
// again. Handlers call it when processing failed for a transient reason; a
// retry of the same update may then succeed instead of being answered
// "duplicate" with no reply.
func (d *Deduper) Forget(updateID string) {
	d.mu.Lock()
	delete(d.seen, updateID)
	d.mu.Unlock()
}

// Len returns the number of remembered IDs, for tests and debugging.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
