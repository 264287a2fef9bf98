package gcal

import "errors"

var (
	// ErrNotConnected is returned when the provider has no calendar connection.
	ErrNotConnected = errors.New("gcal: provider has no calendar connection")

	// ErrUnauthorized is returned when the access token was rejected; the
	// resolver refreshes once and retries before giving up.
	ErrUnauthorized = errors.New("gcal: access token rejected")

	// ErrConnectionExpired is returned when the refresh token itself is
	// revoked or expired. The connection needs to be re-established by the
	// provider; callers skip this provider and keep going.
	ErrConnectionExpired = errors.New("gcal: calendar connection expired, reconnection required")
)
