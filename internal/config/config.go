package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Config struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	IssuerURL    string `validate:"required,url"`
	// PublicBaseURL is the externally reachable base URL of this service,
	// used to build the OAuth redirect_uri and the post-logout returnTo.
	PublicBaseURL string `validate:"required,url"`
	// SessionSecret signs session cookies. Rotating it invalidates all sessions.
	SessionSecret string `validate:"required,min=32"`
	// LogoutURL overrides the provider logout endpoint. Empty means
	// "{issuer}/v2/logout" (the Auth0 convention).
	LogoutURL      string `validate:"omitempty,url"`
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string
	// DiscoveryTTL is how long resolved provider metadata is served before
	// a refetch is attempted. Zero disables refresh.
	DiscoveryTTL time.Duration
	// SessionTTL bounds how long an authenticated session lives.
	SessionTTL time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		ClientID:       getEnv("OIDC_CLIENT_ID", ""),
		ClientSecret:   getEnv("OIDC_CLIENT_SECRET", ""),
		// The issuer is passed through verbatim: discovery matches it
		// byte-for-byte against the document's iss, and some providers'
		// canonical issuer ends in a slash.
		IssuerURL:      getEnv("OIDC_ISSUER_URL", ""),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		SessionSecret:  getEnv("SESSION_SECRET", ""),
		LogoutURL:      getEnv("OIDC_LOGOUT_URL", ""),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		HTTPListenAddr: getEnv("HTTP_LISTEN_ADDR", ":3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.DiscoveryTTL, err = getDuration("OIDC_DISCOVERY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 8*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "OIDC_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "OIDC_CLIENT_SECRET")
	}
	if c.IssuerURL == "" {
		missing = append(missing, "OIDC_ISSUER_URL")
	}
	if c.PublicBaseURL == "" {
		missing = append(missing, "PUBLIC_BASE_URL")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CallbackURL is the redirect_uri registered with the provider.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/callback"
}

// ProviderLogoutURL builds the provider-side logout URL terminating the
// provider SSO session, with returnTo pointing back at this service.
func (c *Config) ProviderLogoutURL() string {
	endpoint := c.LogoutURL
	if endpoint == "" {
		endpoint = strings.TrimRight(c.IssuerURL, "/") + "/v2/logout"
	}

	params := url.Values{
		"returnTo":  {c.PublicBaseURL + "/"},
		"client_id": {c.ClientID},
	}
	return endpoint + "?" + params.Encode()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
