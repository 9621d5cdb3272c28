// Package store – auth gate state
//
// The auth gate holds each user's device-flow state as a guarded finite
// state machine: none → pending → authorized, pending → none on failure,
// authorized → pending on explicit re-auth. Transitions that are not listed
// return ErrBadAuthTransition, which keeps an illegal combination such as
// "pending and authorized" unrepresentable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/scoredb/studentdb-bot/internal/domain"
)

// ErrBadAuthTransition is returned when a guarded transition is attempted
// from the wrong state (e.g. completing an auth that was never started).
var ErrBadAuthTransition = errors.New("invalid auth state transition")

// AuthState returns userID's current gate state. Absent users are AuthNone.
func (s *Store) AuthState(userID string) domain.AuthState {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.auth[userID]
}

// Authorized reports whether userID's gate is open.
func (s *Store) Authorized(userID string) bool {
	return s.AuthState(userID).Authorized()
}

// BeginAuth moves userID to pending with a fresh device code. It is valid
// from every state: from authorized it is the explicit re-auth reset, from
// pending it discards the previous code.
func (s *Store) BeginAuth(ctx context.Context, userID, deviceCode string, expiresAt time.Time) {
	a := domain.AuthState{Status: domain.AuthPending, DeviceCode: deviceCode, ExpiresAt: expiresAt}
	s.authMu.Lock()
	s.auth[userID] = a
	s.authMu.Unlock()
	s.saveAuth(ctx, userID, a)
}

// PendingDeviceCode returns the device code awaiting a check, or
// ErrBadAuthTransition when no auth is pending.
func (s *Store) PendingDeviceCode(userID string) (code string, expiresAt time.Time, err error) {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	a := s.auth[userID]
	if a.Status != domain.AuthPending {
		return "", time.Time{}, ErrBadAuthTransition
	}
	return a.DeviceCode, a.ExpiresAt, nil
}

// CompleteAuth moves userID from pending to authorized, discarding the
// device code. Any other starting state is rejected.
func (s *Store) CompleteAuth(ctx context.Context, userID string) error {
	s.authMu.Lock()
	a := s.auth[userID]
	if a.Status != domain.AuthPending {
		s.authMu.Unlock()
		return ErrBadAuthTransition
	}
	a = domain.AuthState{Status: domain.AuthOK}
	s.auth[userID] = a
	s.authMu.Unlock()
	s.saveAuth(ctx, userID, a)
	return nil
}

// FailAuth discards a pending device flow, returning userID to none. It is
// a no-op for users with nothing pending.
func (s *Store) FailAuth(ctx context.Context, userID string) {
	s.authMu.Lock()
	a := s.auth[userID]
	if a.Status != domain.AuthPending {
		s.authMu.Unlock()
		return
	}
	a = domain.AuthState{Status: domain.AuthNone}
	s.auth[userID] = a
	s.authMu.Unlock()
	s.saveAuth(ctx, userID, a)
}
