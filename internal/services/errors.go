// Package services implements the business logic of the bot: query dispatch,
// the auth gate, and quota reporting. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrNotAuthenticated is returned when a user runs a query before
	// completing the device-flow authorization.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrQuotaExceeded is returned when the user's rolling-window quota is
	// exhausted. The query is not dispatched and nothing is charged.
	ErrQuotaExceeded = errors.New("daily query quota exceeded")

	// ErrEmptyQuery is returned when tokenization leaves nothing to query
	// (blank input, or only mention/command tokens).
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNotFound is returned when a lookup resolved to a definitive
	// negative, either fresh from the provider or from the negative cache.
	ErrNotFound = errors.New("no matching records")

	// ErrInvalidPageRef is returned when a callback payload cannot be decoded
	// or references an object-cache token that no longer resolves. Handlers
	// treat it as a silent no-op.
	ErrInvalidPageRef = errors.New("invalid page reference")

	// ErrAuthNotStarted is returned by an auth check when no device flow is
	// pending for the user.
	ErrAuthNotStarted = errors.New("authorization not started")

	// ErrAuthExpired is returned when the pending device code aged out before
	// the user completed verification. The flow must be restarted.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrAuthDenied is returned when the authorizer reports the user refused
	// the verification. The pending state is discarded.
	ErrAuthDenied = errors.New("authorization denied")
)
