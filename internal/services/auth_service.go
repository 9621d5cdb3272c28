// Package services – AuthService
//
// This file implements the auth gate: the device-flow lifecycle a user walks
// through before queries are dispatched. Begin starts (or restarts) a flow
// and records the pending device code; Check performs exactly one poll
// against the authorizer per user action and advances or discards the
// pending state accordingly. The store's guarded transitions keep the state
// machine consistent under concurrent checks.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scoredb/studentdb-bot/internal/domain"
	"github.com/scoredb/studentdb-bot/internal/providers"
	"github.com/scoredb/studentdb-bot/internal/store"
)

// AuthService orchestrates the device-flow auth gate.
type AuthService struct {
	// Store holds per-user auth states.
	Store *store.Store
	// Provider is the external authorizer client.
	Provider providers.AuthProvider

	// Now is a clock seam for tests; defaults to time.Now.
	Now func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(st *store.Store, p providers.AuthProvider) *AuthService {
	return &AuthService{Store: st, Provider: p, Now: time.Now}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Begin starts a device flow for the user and stores the pending state. An
// already-authorized user is moved back to pending: this is the explicit
// re-auth path, and the previous authorization is discarded.
func (s *AuthService) Begin(ctx context.Context, userID string) (providers.DeviceAuth, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Begin")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	da, err := s.Provider.StartDeviceFlow(ctx)
	if err != nil {
		return providers.DeviceAuth{}, err
	}
	s.Store.BeginAuth(ctx, userID, da.DeviceCode, da.ExpiresAt(s.now()))
	return da, nil
}

// Check performs one poll of the pending device flow. It returns the status
// after the poll: AuthOK when the authorizer confirmed, AuthPending when the
// user has not completed verification yet. Expired or denied flows are
// discarded and reported via ErrAuthExpired / ErrAuthDenied; a user with no
// pending flow gets ErrAuthNotStarted. Transient authorizer errors leave the
// pending state untouched.
func (s *AuthService) Check(ctx context.Context, userID string) (domain.AuthStatus, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Check")
	span.SetAttributes(attribute.String("user.id", userID))
	defer span.End()

	if s.Store.Authorized(userID) {
		return domain.AuthOK, nil
	}
	code, expiresAt, err := s.Store.PendingDeviceCode(userID)
	if err != nil {
		return domain.AuthNone, ErrAuthNotStarted
	}
	if s.now().After(expiresAt) {
		s.Store.FailAuth(ctx, userID)
		return domain.AuthNone, ErrAuthExpired
	}

	ok, err := s.Provider.PollDeviceFlow(ctx, code)
	switch {
	case errors.Is(err, providers.ErrDeviceCodeExpired):
		s.Store.FailAuth(ctx, userID)
		return domain.AuthNone, ErrAuthExpired
	case errors.Is(err, providers.ErrAuthDenied):
		s.Store.FailAuth(ctx, userID)
		return domain.AuthNone, ErrAuthDenied
	case err != nil:
		return domain.AuthPending, err
	}
	if !ok {
		return domain.AuthPending, nil
	}
	if err := s.Store.CompleteAuth(ctx, userID); err != nil {
		// Lost a race with a concurrent re-auth; report what the store holds.
		return s.Store.AuthState(userID).Status, nil
	}
	return domain.AuthOK, nil
}

// Status returns the user's current gate state without polling.
func (s *AuthService) Status(userID string) domain.AuthState {
	return s.Store.AuthState(userID)
}
