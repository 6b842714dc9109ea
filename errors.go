package noteapi

import "errors"

var (
	// ErrTokenInvalid rejects a refresh token that is malformed, carries a
	// bad signature, or has no backing record.
	ErrTokenInvalid = errors.New("invalid refresh token")
	// ErrTokenReused signals presentation of an already-rotated token. This
	// is the reuse-detection path and is security significant.
	ErrTokenReused = errors.New("refresh token reuse detected")
	// ErrTokenExpired rejects a token past its sliding expiration.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrSessionExpired rejects rotation past the absolute session ceiling,
	// regardless of how recently the token was issued.
	ErrSessionExpired = errors.New("session exceeded maximum age")
	// ErrBlocked rejects a request from an identifier under an active abuse
	// block.
	ErrBlocked = errors.New("identifier blocked")
	// ErrDependencyUnavailable wraps failures to reach a backing dependency,
	// including the breaker failing fast while open.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)
