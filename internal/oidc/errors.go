package oidc

import "errors"

// Failure categories for the authorization code flow. Handlers branch on
// these with errors.Is; the wrapped detail is for server-side logs only and
// must never reach the browser.
var (
	// ErrDiscovery covers an unreachable, non-200 or malformed provider
	// discovery document. Fatal at startup, tolerated on refresh.
	ErrDiscovery = errors.New("provider discovery failed")

	// ErrStateMismatch means the state returned by the provider does not
	// match the one stored in the session. Client-caused, never retried.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrNonceMismatch means the nonce claim in the ID token does not match
	// the one generated at login. Defends the token leg the way state
	// defends the redirect leg.
	ErrNonceMismatch = errors.New("nonce mismatch")

	// ErrTokenExchange covers token endpoint failures: network errors,
	// timeouts, non-2xx responses and malformed bodies.
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrTokenValidation covers a bad ID token: signature, issuer, audience,
	// expiry, or a missing required claim.
	ErrTokenValidation = errors.New("token validation failed")

	// ErrUserInfo covers userinfo endpoint failures. Non-fatal: login
	// proceeds with ID token claims only.
	ErrUserInfo = errors.New("userinfo fetch failed")
)
