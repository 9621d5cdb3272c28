// Package store – quota tracking
//
// Each user gets a rolling 24-hour window of provider-call charges. The
// tracker only answers "may this user trigger another fetch"; it never
// increments on its own. Callers charge explicitly after confirming a real
// (cache-miss) provider call happened, so cache hits are always free.
package store

import (
	"context"
	"time"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

// QuotaAllow reports whether userID may trigger another provider call at
// "now". An unset or expired window is reset (used=0, windowStart=now)
// before the check, and the reset is persisted.
func (s *Store) QuotaAllow(ctx context.Context, userID string, now time.Time) bool {
	s.quotaMu.Lock()
	q := s.rollWindowLocked(ctx, userID, now)
	allowed := q.Used < s.quotaLimit
	s.quotaMu.Unlock()
	return allowed
}

// QuotaCharge records one consumed provider call for userID. Call it only
// after QuotaAllow returned true and a real fetch occurred.
func (s *Store) QuotaCharge(ctx context.Context, userID string, now time.Time) {
	s.quotaMu.Lock()
	q := s.rollWindowLocked(ctx, userID, now)
	q.Used++
	s.quotas[userID] = q
	s.quotaMu.Unlock()
	s.saveQuota(ctx, userID, q)
}

// QuotaUsage returns the window state for the limits report, rolling the
// window first so a stale "used up" count does not outlive its 24 hours.
func (s *Store) QuotaUsage(ctx context.Context, userID string, now time.Time) (used, limit int) {
	s.quotaMu.Lock()
	q := s.rollWindowLocked(ctx, userID, now)
	s.quotaMu.Unlock()
	return q.Used, s.quotaLimit
}

// rollWindowLocked resets an unset or expired window and returns the current
// state. Caller must hold quotaMu. The persisted write happens outside the
// caller's critical section only for charges; resets persist inline because
// they are rare.
func (s *Store) rollWindowLocked(ctx context.Context, userID string, now time.Time) domain.QuotaState {
	q := s.quotas[userID]
	if q.Expired(now, s.quotaWindow) {
		q = domain.QuotaState{WindowStart: now, Used: 0}
		s.quotas[userID] = q
		s.saveQuota(ctx, userID, q)
	}
	return q
}
