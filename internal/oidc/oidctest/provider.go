// Package oidctest runs a minimal OpenID Connect provider on httptest for
// exercising the authorization code flow without a real identity provider.
package oidctest

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

// Provider serves discovery, JWKS, token and userinfo endpoints. The
// authorize endpoint is intentionally absent: tests drive the callback
// directly, playing the role of the browser redirect.
type Provider struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	keyID  string

	mu            sync.Mutex
	subject       string
	email         string
	name          string
	nonce         string
	audience      string
	expectedCode  string
	accessToken   string
	omitSubject   bool
	userInfoDown  bool
	tokenRequests int
}

func New(t *testing.T) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	p := &Provider{
		key:         key,
		keyID:       "test-key-1",
		subject:     "user123",
		email:       "user@example.com",
		name:        "Test User",
		accessToken: "test-access-token",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("/.well-known/jwks.json", p.handleJWKS)
	mux.HandleFunc("/oauth/token", p.handleToken)
	mux.HandleFunc("/userinfo", p.handleUserInfo)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)

	return p
}

// URL is the issuer URL.
func (p *Provider) URL() string { return p.server.URL }

// SetUser sets the identity embedded in issued ID tokens.
func (p *Provider) SetUser(subject, email, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject, p.email, p.name = subject, email, name
}

// SetNonce sets the nonce claim of the next ID token. Real providers echo
// the nonce from the authorize request; tests set it explicitly since the
// authorize leg is skipped.
func (p *Provider) SetNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = nonce
}

// SetAudience overrides the aud claim, for audience-mismatch tests.
func (p *Provider) SetAudience(aud string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audience = aud
}

// SetExpectedCode makes the token endpoint reject any other code.
func (p *Provider) SetExpectedCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedCode = code
}

// OmitSubject makes issued ID tokens carry an empty sub claim.
func (p *Provider) OmitSubject() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitSubject = true
}

// FailUserInfo makes the userinfo endpoint return 500.
func (p *Provider) FailUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoDown = true
}

// TokenRequests reports how many times the token endpoint was hit, letting
// tests assert that rejected callbacks never reached the network.
func (p *Provider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

func (p *Provider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                                p.server.URL,
		"authorization_endpoint":                p.server.URL + "/oauth/authorize",
		"token_endpoint":                        p.server.URL + "/oauth/token",
		"userinfo_endpoint":                     p.server.URL + "/userinfo",
		"jwks_uri":                              p.server.URL + "/.well-known/jwks.json",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *Provider) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	n := base64.RawURLEncoding.EncodeToString(p.key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(p.key.PublicKey.E)).Bytes())

	writeJSON(w, map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": p.keyID,
				"n":   n,
				"e":   e,
			},
		},
	})
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokenRequests++
	expectedCode := p.expectedCode
	accessToken := p.accessToken
	p.mu.Unlock()

	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if r.PostFormValue("grant_type") != "authorization_code" {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if expectedCode != "" && r.PostFormValue("code") != expectedCode {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"error": "invalid_grant"})
		return
	}

	idToken, err := p.signIDToken(requestClientID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"access_token": accessToken,
		"id_token":     idToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (p *Provider) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	down := p.userInfoDown
	sub, email, name := p.subject, p.email, p.name
	token := p.accessToken
	p.mu.Unlock()

	if down {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+token {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	writeJSON(w, map[string]any{
		"sub":            sub,
		"email":          email,
		"name":           name,
		"email_verified": true,
	})
}

// signIDToken produces a signed RS256 JWT for the configured identity.
func (p *Provider) signIDToken(clientID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	aud := clientID
	if p.audience != "" {
		aud = p.audience
	}

	now := time.Now()
	claims := map[string]any{
		"iss":            p.server.URL,
		"aud":            aud,
		"exp":            now.Add(1 * time.Hour).Unix(),
		"iat":            now.Unix(),
		"email":          p.email,
		"name":           p.name,
		"email_verified": true,
	}
	if !p.omitSubject {
		claims["sub"] = p.subject
	}
	if p.nonce != "" {
		claims["nonce"] = p.nonce
	}

	header := map[string]string{
		"alg": "RS256",
		"typ": "JWT",
		"kid": p.keyID,
	}

	headerJSON, _ := json.Marshal(header)
	claimsJSON, _ := json.Marshal(claims)

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON)

	h := sha256.New()
	h.Write([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, p.key, crypto.SHA256, h.Sum(nil))
	if err != nil {
		return "", err
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// requestClientID pulls the client ID from Basic auth (the oauth2 package's
// default auth style) or the form body.
func requestClientID(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok {
		if id, err := url.QueryUnescape(user); err == nil {
			return id
		}
		return user
	}
	return r.PostFormValue("client_id")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
