package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
)

const httpTimeout = 10 * time.Second

// Resolver fetches and caches the provider's discovery document. The initial
// resolve must succeed (there is no safe fallback to guessed endpoints); after
// that the cached metadata is served read-only, refetched lazily once the TTL
// elapses. A failed refetch keeps the previous value.
type Resolver struct {
	issuer     string
	ttl        time.Duration
	httpClient *http.Client
	logger     zerolog.Logger

	mu         sync.RWMutex
	provider   *gooidc.Provider
	resolvedAt time.Time
}

func NewResolver(ctx context.Context, issuer string, ttl time.Duration, logger zerolog.Logger) (*Resolver, error) {
	r := &Resolver{
		issuer:     issuer,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}

	provider, err := r.fetch(ctx)
	if err != nil {
		return nil, err
	}
	r.provider = provider
	r.resolvedAt = time.Now()

	return r, nil
}

// Provider returns the current provider metadata, refetching if the TTL has
// elapsed. Always returns a usable value once the resolver is constructed.
func (r *Resolver) Provider(ctx context.Context) *gooidc.Provider {
	r.mu.RLock()
	provider := r.provider
	fresh := r.ttl <= 0 || time.Since(r.resolvedAt) < r.ttl
	r.mu.RUnlock()

	if fresh {
		return provider
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another request may have refreshed while we waited for the lock.
	if r.ttl > 0 && time.Since(r.resolvedAt) >= r.ttl {
		refreshed, err := r.fetch(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("issuer", r.issuer).
				Msg("discovery refresh failed, serving cached metadata")
			// Push the next attempt out a full TTL so a flapping provider
			// does not get hammered on every request.
			r.resolvedAt = time.Now()
		} else {
			r.provider = refreshed
			r.resolvedAt = time.Now()
		}
	}

	return r.provider
}

func (r *Resolver) fetch(ctx context.Context) (*gooidc.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, r.httpClient), r.issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: issuer %s: %v", ErrDiscovery, r.issuer, err)
	}
	return provider, nil
}
