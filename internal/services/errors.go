// Package services implements the digest aggregation core: per-provider
// cache-or-fetch resolvers, the subscription router, and the newsletter
// delivery orchestration. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrNoUsers indicates that the user table is empty, so there is no
	// delivery target for the newsletter run.
	ErrNoUsers = errors.New("no users found")

	// ErrNoContent is returned when an aggregation run produced an empty
	// bundle, leaving nothing to deliver.
	ErrNoContent = errors.New("no content generated")

	// ErrDuplicateDelivery is returned when a send request carries an
	// idempotency key that already has a live delivery receipt. The earlier
	// send stands; no second email goes out.
	ErrDuplicateDelivery = errors.New("newsletter already delivered for this key")
)
