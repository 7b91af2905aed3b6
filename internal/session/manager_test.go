package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(), testSecret, time.Hour)
}

// saveAndCookie saves the session and returns the issued cookie.
func saveAndCookie(t *testing.T, m *Manager, s *Session) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, s))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestManagerGetCreatesEmptySession(t *testing.T) {
	m := newTestManager()

	r := httptest.NewRequest("GET", "/", nil)
	s, err := m.Get(context.Background(), r)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.False(t, s.Authenticated())
	assert.Nil(t, s.Flow)
}

func TestManagerCookieRoundTrip(t *testing.T) {
	m := newTestManager()

	r := httptest.NewRequest("GET", "/", nil)
	s, err := m.Get(context.Background(), r)
	require.NoError(t, err)
	s.PendingRedirect = "/protected"

	cookie := saveAndCookie(t, m, s)

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(cookie)
	got, err := m.Get(context.Background(), r2)
	require.NoError(t, err)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "/protected", got.PendingRedirect)
}

func TestManagerCookieAttributes(t *testing.T) {
	m := newTestManager()

	s, err := m.newSession()
	require.NoError(t, err)
	cookie := saveAndCookie(t, m, s)

	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	// The session ID alone is useless without the signature.
	assert.Contains(t, cookie.Value, ".")
}

func TestManagerRejectsTamperedCookie(t *testing.T) {
	m := newTestManager()

	s, err := m.newSession()
	require.NoError(t, err)
	s.PendingRedirect = "/protected"
	cookie := saveAndCookie(t, m, s)

	// Swap the session ID but keep the old signature.
	parts := strings.SplitN(cookie.Value, ".", 2)
	require.Len(t, parts, 2)
	forged := &http.Cookie{Name: cookie.Name, Value: "forged-id." + parts[1]}

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(forged)
	got, err := m.Get(context.Background(), r)
	require.NoError(t, err)

	// Tampered cookie yields a fresh anonymous session, not an error.
	assert.NotEqual(t, s.ID, got.ID)
	assert.Empty(t, got.PendingRedirect)
}

func TestManagerRejectsGarbageCookie(t *testing.T) {
	m := newTestManager()

	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "authgate_session", Value: "no-signature-here"})

	got, err := m.Get(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, got.Authenticated())
}

func TestManagerClear(t *testing.T) {
	m := newTestManager()

	s, err := m.newSession()
	require.NoError(t, err)
	s.Principal = &Principal{LoginAt: time.Now()}
	cookie := saveAndCookie(t, m, s)

	r := httptest.NewRequest("GET", "/logout", nil)
	r.AddCookie(cookie)
	rec := httptest.NewRecorder()
	require.NoError(t, m.Clear(context.Background(), rec, r))

	// Cookie is expired client-side.
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Less(t, cleared[0].MaxAge, 0)

	// And the record is gone server-side: presenting the old cookie again
	// yields a fresh session.
	r2 := httptest.NewRequest("GET", "/", nil)
	r2.AddCookie(cookie)
	got, err := m.Get(context.Background(), r2)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, got.ID)
	assert.False(t, got.Authenticated())
}

func TestManagerPersistDoesNotTouchCookie(t *testing.T) {
	m := newTestManager()

	s, err := m.newSession()
	require.NoError(t, err)
	require.NoError(t, m.Persist(context.Background(), s))

	got, err := m.store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSignVerify(t *testing.T) {
	m := newTestManager()

	signed := m.sign("some-id")
	id, ok := m.verify(signed)
	assert.True(t, ok)
	assert.Equal(t, "some-id", id)

	_, ok = m.verify("some-id.bogus-signature")
	assert.False(t, ok)

	other := NewManager(NewMemoryStore(), []byte("another-secret-another-secret-xx"), time.Hour)
	_, ok = other.verify(signed)
	assert.False(t, ok)
}
