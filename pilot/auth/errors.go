package auth

import "errors"

// Authentication failures are fatal to the caller's request. They are kept
// distinct so a UI can tell "request a fresh device code" (expired) from
// "retry" (timed out, provider unavailable) and "try a manual token" (denied).
var (
	ErrProviderUnavailable      = errors.New("identity provider unavailable")
	ErrAuthorizationDenied      = errors.New("authorization denied")
	ErrAuthorizationExpired     = errors.New("authorization expired")
	ErrAuthorizationTimedOut    = errors.New("authorization timed out")
	ErrAuthenticationInProgress = errors.New("authentication already in progress")
	ErrTokenExchangeFailed      = errors.New("service token exchange failed")
)
