// Package handlers defines HTTP-layer error codes used across all API
// endpoints. These symbolic constants are mapped to HTTP responses via the
// fail() helper and give clients a stable, machine-readable error taxonomy
// alongside the human-readable message.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeNoContent        = "no_content_generated"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
