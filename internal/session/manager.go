package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const cookieName = "authgate_session"

// Manager ties browser cookies to stored sessions. The cookie value is
// "id.signature" with an HMAC-SHA256 signature over the id, so a tampered
// cookie is indistinguishable from a missing one. Session content never
// leaves the server.
type Manager struct {
	store  Store
	secret []byte
	ttl    time.Duration
}

func NewManager(store Store, secret []byte, ttl time.Duration) *Manager {
	return &Manager{store: store, secret: secret, ttl: ttl}
}

// Get returns the request's session, creating a fresh empty one when the
// cookie is absent, tampered with, or points at an expired record. The only
// error condition is store I/O failure.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return m.newSession()
	}

	id, ok := m.verify(cookie.Value)
	if !ok {
		return m.newSession()
	}

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return m.newSession()
	}
	return s, nil
}

// Save persists the whole session record and (re)issues the cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	s.ExpiresAt = time.Now().Add(m.ttl)
	if err := m.store.Save(ctx, s); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    m.sign(s.ID),
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Persist writes the session record without touching the cookie. Used when a
// field must be durably consumed mid-request (single-use flow state) before
// the response is decided.
func (m *Manager) Persist(ctx context.Context, s *Session) error {
	s.ExpiresAt = time.Now().Add(m.ttl)
	return m.store.Save(ctx, s)
}

// Clear removes the store record and expires the cookie. Safe to call for
// requests without a valid session.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(cookieName); err == nil {
		if id, ok := m.verify(cookie.Value); ok {
			if err := m.store.Delete(ctx, id); err != nil {
				return err
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) newSession() (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: generate session id: %v", ErrStoreUnavailable, err)
	}
	return &Session{ID: id, CreatedAt: time.Now()}, nil
}

func (m *Manager) sign(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return id + "." + sig
}

func (m *Manager) verify(value string) (string, bool) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return "", false
	}

	id := parts[0]
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}

	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return "", false
	}
	return id, true
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
