package middleware

import (
	"testing"
	"time"
)

func TestDeduperFirstSeenPasses(t *testing.T) {
	d := NewDeduper(time.Minute)
	if d.Seen("upd-1") {
		t.Fatalf("first sighting must not be a duplicate")
	}
	if !d.Seen("upd-1") {
		t.Fatalf("second sighting must be a duplicate")
	}
	if d.Seen("upd-2") {
		t.Fatalf("different ID must not be a duplicate")
	}
}

func TestDeduperForgetReleasesClaim(t *testing.T) {
	d := NewDeduper(time.Minute)
	if d.Seen("upd-1") {
		t.Fatalf("first sighting must not be a duplicate")
	}
	d.Forget("upd-1")
	if d.Seen("upd-1") {
		t.Fatalf("forgotten ID must be processed again")
	}
	if !d.Seen("upd-1") {
		t.Fatalf("re-claimed ID must dedup again")
	}
	d.Forget("never-seen") // no-op
}

func TestDeduperEmptyIDNeverDuplicate(t *testing.T) {
	d := NewDeduper(time.Minute)
	if d.Seen("") || d.Seen("") {
		t.Fatalf("empty IDs must always pass")
	}
	if d.Len() != 0 {
		t.Fatalf("empty IDs must not be remembered, len=%d", d.Len())
	}
}

func TestDeduperTTLExpiry(t *testing.T) {
	d := NewDeduper(time.Minute)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	if d.Seen("upd-1") {
		t.Fatal("first sighting")
	}
	now = now.Add(59 * time.Second)
	if !d.Seen("upd-1") {
		t.Fatal("within TTL must be a duplicate")
	}

	// Duplicates do not refresh the stamp; move past the first sighting.
	now = now.Add(61 * time.Second)
	if d.Seen("upd-1") {
		t.Fatal("after TTL the ID must pass again")
	}
}

func TestDeduperOpportunisticGC(t *testing.T) {
	d := NewDeduper(time.Minute)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.Seen("old")
	now = now.Add(2 * time.Minute)

	// Force cleanup on the next lookup.
	d.mu.Lock()
	d.lookups = 4999
	d.mu.Unlock()

	d.Seen("new")
	d.mu.Lock()
	_, oldKept := d.seen["old"]
	_, newKept := d.seen["new"]
	d.mu.Unlock()
	if oldKept {
		t.Error("aged-out ID not evicted")
	}
	if !newKept {
		t.Error("fresh ID missing")
	}
}

func TestDeduperDefaultTTL(t *testing.T) {
	d := NewDeduper(0)
	if d.ttl != 10*time.Minute {
		t.Fatalf("ttl = %v, want coerced default", d.ttl)
	}
}
