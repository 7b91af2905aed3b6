package oidc

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Flow is the transient state of one authorization code round trip. It is
// generated at login, persisted in the session by the caller, and consumed
// exactly once at callback.
type Flow struct {
	State string `json:"state"`
	Nonce string `json:"nonce"`
}

// TokenSet is the raw token material returned by the provider.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	RawIDToken   string    `json:"id_token"`
	Expiry       time.Time `json:"expiry"`
}

// Identity is the verified identity extracted from the ID token (or enriched
// from the userinfo endpoint). Subject is never empty.
type Identity struct {
	Subject       string `json:"subject"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Client drives the authorization code flow against a single registered
// OAuth client. Safe for concurrent use.
type Client struct {
	resolver     *Resolver
	clientID     string
	clientSecret string
	redirectURL  string
	logger       zerolog.Logger
}

func NewClient(resolver *Resolver, clientID, clientSecret, redirectURL string, logger zerolog.Logger) *Client {
	return &Client{
		resolver:     resolver,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		logger:       logger,
	}
}

func (c *Client) oauth2Config(ctx context.Context) oauth2.Config {
	return oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURL,
		Endpoint:     c.resolver.Provider(ctx).Endpoint(),
		Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
	}
}

// AuthorizationURL builds the provider authorize URL with fresh state and
// nonce values. The caller must persist the returned Flow in the session
// before redirecting: the callback arrives as a new, stateless request.
func (c *Client) AuthorizationURL(ctx context.Context) (string, Flow, error) {
	state, err := randomToken()
	if err != nil {
		return "", Flow{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomToken()
	if err != nil {
		return "", Flow{}, fmt.Errorf("generate nonce: %w", err)
	}

	flow := Flow{State: state, Nonce: nonce}
	cfg := c.oauth2Config(ctx)
	return cfg.AuthCodeURL(state, gooidc.Nonce(nonce)), flow, nil
}

// Exchange completes the flow: it verifies the returned state against the
// stored flow before any network call, exchanges the code at the token
// endpoint, validates the ID token via the provider's JWKS, and checks the
// nonce claim. A missing sub claim fails the exchange rather than producing
// a degraded identity.
func (c *Client) Exchange(ctx context.Context, code, receivedState string, flow Flow) (*TokenSet, *Identity, error) {
	if flow.State == "" {
		return nil, nil, fmt.Errorf("%w: no login flow in progress", ErrStateMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(receivedState), []byte(flow.State)) != 1 {
		return nil, nil, fmt.Errorf("%w: returned state does not match session", ErrStateMismatch)
	}

	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	ctx = gooidc.ClientContext(ctx, c.resolver.httpClient)

	provider := c.resolver.Provider(ctx)
	cfg := c.oauth2Config(ctx)

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no id_token in token response", ErrTokenExchange)
	}

	idToken, err := provider.Verifier(&gooidc.Config{ClientID: c.clientID}).Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTokenValidation, err)
	}

	var claims struct {
		Nonce         string `json:"nonce"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("%w: decode claims: %v", ErrTokenValidation, err)
	}

	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(flow.Nonce)) != 1 {
		return nil, nil, fmt.Errorf("%w: id_token nonce does not match session", ErrNonceMismatch)
	}

	if idToken.Subject == "" {
		return nil, nil, fmt.Errorf("%w: missing sub claim", ErrTokenValidation)
	}

	tokens := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		RawIDToken:   rawIDToken,
		Expiry:       token.Expiry,
	}
	identity := &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}
	return tokens, identity, nil
}

// UserInfo enriches an identity from the provider's userinfo endpoint.
// Callers treat failure as non-fatal: the user is already authenticated.
func (c *Client) UserInfo(ctx context.Context, tokens *TokenSet, identity *Identity) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	ctx = gooidc.ClientContext(ctx, c.resolver.httpClient)

	provider := c.resolver.Provider(ctx)
	info, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: tokens.AccessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}

	if info.Subject != identity.Subject {
		return nil, fmt.Errorf("%w: userinfo sub %q does not match id_token sub", ErrUserInfo, info.Subject)
	}

	enriched := *identity
	var claims struct {
		Name string `json:"name"`
	}
	if err := info.Claims(&claims); err == nil && claims.Name != "" {
		enriched.Name = claims.Name
	}
	if info.Email != "" {
		enriched.Email = info.Email
		enriched.EmailVerified = info.EmailVerified
	}
	return &enriched, nil
}

// randomToken returns 256 bits of entropy, base64url encoded.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
