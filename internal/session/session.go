package session

import (
	"context"
	"errors"
	"time"

	"github.com/edvin/authgate/internal/oidc"
)

// ErrStoreUnavailable reports a session store I/O failure. Fatal for the
// request: no handler can proceed without session access.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Principal is the authenticated identity held by a session.
type Principal struct {
	Identity oidc.Identity `json:"identity"`
	Tokens   oidc.TokenSet `json:"tokens"`
	LoginAt  time.Time     `json:"login_at"`
}

// Session is one browser session. The zero principal means unauthenticated.
// Flow is present only while an authorization code round trip is in flight
// and is consumed exactly once at callback.
type Session struct {
	ID              string     `json:"id"`
	Principal       *Principal `json:"principal,omitempty"`
	PendingRedirect string     `json:"pending_redirect,omitempty"`
	Flow            *oidc.Flow `json:"flow,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
}

func (s *Session) Authenticated() bool {
	return s.Principal != nil
}

// ConsumeFlow returns the in-flight flow state and removes it from the
// session. Single-use: a replayed callback finds nothing to consume.
func (s *Session) ConsumeFlow() *oidc.Flow {
	flow := s.Flow
	s.Flow = nil
	return flow
}

// ConsumePendingRedirect returns the stored post-login target and clears it.
func (s *Session) ConsumePendingRedirect() string {
	target := s.PendingRedirect
	s.PendingRedirect = ""
	return target
}

// Store persists sessions keyed by their opaque ID. Save replaces the whole
// record atomically; implementations must never merge fields, so concurrent
// tabs race on whole records rather than corrupting one.
type Store interface {
	// Get returns the session, or nil if absent or expired.
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions that expired before now and reports
	// how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
