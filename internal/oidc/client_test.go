package oidc

import (
	"context"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/authgate/internal/oidc/oidctest"
)

const (
	testClientID     = "client-abc"
	testClientSecret = "shhh"
	testCallbackURL  = "https://app.example.com/callback"
)

func newTestClient(t *testing.T, provider *oidctest.Provider) *Client {
	t.Helper()
	resolver, err := NewResolver(context.Background(), provider.URL(), 0, zerolog.Nop())
	require.NoError(t, err)
	return NewClient(resolver, testClientID, testClientSecret, testCallbackURL, zerolog.Nop())
}

func TestAuthorizationURL(t *testing.T) {
	provider := oidctest.New(t)
	client := newTestClient(t, provider)

	redirect, flow, err := client.AuthorizationURL(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testCallbackURL, q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, flow.State, q.Get("state"))
	assert.Equal(t, flow.Nonce, q.Get("nonce"))

	// 256 bits base64url encoded is 43 chars.
	assert.Len(t, flow.State, 43)
	assert.Len(t, flow.Nonce, 43)
	assert.NotEqual(t, flow.State, flow.Nonce)
}

func TestAuthorizationURLUniquePerCall(t *testing.T) {
	provider := oidctest.New(t)
	client := newTestClient(t, provider)

	_, flow1, err := client.AuthorizationURL(context.Background())
	require.NoError(t, err)
	_, flow2, err := client.AuthorizationURL(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, flow1.State, flow2.State)
	assert.NotEqual(t, flow1.Nonce, flow2.Nonce)
}

func TestExchange(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetUser("user123", "user@example.com", "Test User")
	provider.SetNonce("N1")
	provider.SetExpectedCode("ABC")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	tokens, identity, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.NoError(t, err)

	assert.Equal(t, "user123", identity.Subject)
	assert.Equal(t, "user@example.com", identity.Email)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RawIDToken)
}

func TestExchangeStateMismatch(t *testing.T) {
	provider := oidctest.New(t)
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	_, _, err := client.Exchange(context.Background(), "ABC", "WRONG", flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)

	// CSRF defense: the mismatch must be caught before any network call.
	assert.Equal(t, 0, provider.TokenRequests())
}

func TestExchangeNoFlowInProgress(t *testing.T) {
	provider := oidctest.New(t)
	client := newTestClient(t, provider)

	_, _, err := client.Exchange(context.Background(), "ABC", "S1", Flow{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Equal(t, 0, provider.TokenRequests())
}

func TestExchangeNonceMismatch(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetNonce("EVIL")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	_, _, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonceMismatch)
}

func TestExchangeBadCode(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetExpectedCode("GOOD")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	_, _, err := client.Exchange(context.Background(), "BAD", "S1", flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExchange)
}

func TestExchangeAudienceMismatch(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetNonce("N1")
	provider.SetAudience("some-other-client")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	_, _, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenValidation)
}

func TestExchangeMissingSubject(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetNonce("N1")
	provider.OmitSubject()
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	_, _, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenValidation)
}

func TestUserInfo(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetUser("user123", "user@example.com", "Test User")
	provider.SetNonce("N1")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	tokens, identity, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.NoError(t, err)

	enriched, err := client.UserInfo(context.Background(), tokens, identity)
	require.NoError(t, err)
	assert.Equal(t, "user123", enriched.Subject)
	assert.Equal(t, "Test User", enriched.Name)
	assert.True(t, enriched.EmailVerified)
}

func TestUserInfoFailure(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetNonce("N1")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	tokens, identity, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.NoError(t, err)

	provider.FailUserInfo()
	_, err = client.UserInfo(context.Background(), tokens, identity)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserInfo)
}

func TestUserInfoSubjectMismatch(t *testing.T) {
	provider := oidctest.New(t)
	provider.SetNonce("N1")
	client := newTestClient(t, provider)

	flow := Flow{State: "S1", Nonce: "N1"}
	tokens, identity, err := client.Exchange(context.Background(), "ABC", "S1", flow)
	require.NoError(t, err)

	provider.SetUser("someone-else", "other@example.com", "Other")
	_, err = client.UserInfo(context.Background(), tokens, identity)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserInfo)
}
