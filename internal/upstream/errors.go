package upstream

import "errors"

// Token-endpoint outcomes per RFC 8628 section 3.5, mapped once at the
// provider boundary so handlers switch on sentinels instead of strings.
var (
	// ErrAuthorizationPending indicates the user has not approved yet.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrSlowDown indicates the provider is rate limiting this device code.
	ErrSlowDown = errors.New("polling too frequently")

	// ErrExpiredToken indicates the device code has expired.
	ErrExpiredToken = errors.New("device code expired")

	// ErrAccessDenied indicates the user rejected the request.
	ErrAccessDenied = errors.New("authorization denied")
)
