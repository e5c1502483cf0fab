package domain

import "errors"

// Error taxonomy for one chat request. Nothing here is fatal to the
// process; every failure is scoped to the request that produced it.
var (
	// ErrInvalidRequest marks malformed input, rejected before any
	// model call or stream is opened.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrProviderUnavailable marks a connection, auth or timeout
	// failure before the backend produced output. Retryable.
	ErrProviderUnavailable = errors.New("model provider unavailable")

	// ErrProviderError marks an error payload returned by the backend.
	// Not retried.
	ErrProviderError = errors.New("model provider error")
)
