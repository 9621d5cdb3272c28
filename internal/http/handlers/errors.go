// Package handlers defines HTTP-layer error codes used across the webhook
// endpoints.
//
// The codes are a stable, machine-readable taxonomy supplementing the HTTP
// status and the human-readable message in the error envelope. Most service
// failures never reach this layer: gate refusals, quota rejections, and
// missing records are rendered as normal bot replies so the platform does
// not redeliver the update. What remains is malformed requests and genuine
// server faults.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeRenderFailed     = "render_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
