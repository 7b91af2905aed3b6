package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/edvin/authgate/internal/api/response"
	"github.com/edvin/authgate/internal/audit"
	"github.com/edvin/authgate/internal/oidc"
	"github.com/edvin/authgate/internal/session"
)

var loginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Completed login attempts by outcome",
	},
	[]string{"outcome"},
)

const genericError = "an error occurred"

type Auth struct {
	client    *oidc.Client
	manager   *session.Manager
	auditor   *audit.Logger
	logoutURL string
}

func NewAuth(client *oidc.Client, manager *session.Manager, auditor *audit.Logger, logoutURL string) *Auth {
	return &Auth{
		client:    client,
		manager:   manager,
		auditor:   auditor,
		logoutURL: logoutURL,
	}
}

// Login begins the authorization code flow: fresh state and nonce go into
// the session, then the browser is sent to the provider. Works for both
// anonymous and already-authenticated sessions (re-login).
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	sess, err := h.manager.Get(ctx, r)
	if err != nil {
		logger.Error().Err(err).Msg("session store unavailable")
		response.WriteError(w, http.StatusInternalServerError, genericError)
		return
	}

	redirectURL, flow, err := h.client.AuthorizationURL(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build authorization URL")
		response.WriteError(w, http.StatusInternalServerError, genericError)
		return
	}

	// The flow must be durable before the redirect goes out: the callback
	// arrives as a brand-new request and can only be matched via the session.
	sess.Flow = &flow
	if err := h.manager.Save(ctx, w, sess); err != nil {
		logger.Error().Err(err).Msg("failed to save session")
		response.WriteError(w, http.StatusInternalServerError, genericError)
		return
	}

	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// Callback completes the flow. Accepts GET (query params) and POST
// (form_post response mode); r.FormValue covers both. The stored flow state
// is consumed and persisted before the exchange so a replayed callback finds
// nothing to match against.
func (h *Auth) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	sess, err := h.manager.Get(ctx, r)
	if err != nil {
		logger.Error().Err(err).Msg("session store unavailable")
		response.WriteError(w, http.StatusInternalServerError, genericError)
		return
	}

	// Persist only when something was actually consumed: a stray cookieless
	// hit on /callback must not write an empty session record.
	flow := sess.ConsumeFlow()
	if flow != nil {
		if err := h.manager.Persist(ctx, sess); err != nil {
			logger.Error().Err(err).Msg("failed to consume flow state")
			response.WriteError(w, http.StatusInternalServerError, genericError)
			return
		}
	}

	// Provider-reported failure (user denied consent, provider misconfig).
	// Detail stays in the server log.
	if errParam := r.FormValue("error"); errParam != "" {
		logger.Warn().
			Str("provider_error", errParam).
			Str("description", r.FormValue("error_description")).
			Msg("provider returned error on callback")
		loginsTotal.WithLabelValues("provider_error").Inc()
		response.WriteError(w, http.StatusBadGateway, genericError)
		return
	}

	var expected oidc.Flow
	if flow != nil {
		expected = *flow
	}

	tokens, identity, err := h.client.Exchange(ctx, r.FormValue("code"), r.FormValue("state"), expected)
	if err != nil {
		h.rejectLogin(w, logger, err)
		return
	}

	// Optional enrichment; the user is already authenticated at this point.
	if enriched, uerr := h.client.UserInfo(ctx, tokens, identity); uerr != nil {
		logger.Warn().Err(uerr).Msg("userinfo fetch failed, proceeding with id_token claims")
	} else {
		identity = enriched
	}

	sess.Principal = &session.Principal{
		Identity: *identity,
		Tokens:   *tokens,
		LoginAt:  time.Now().UTC(),
	}
	target := sess.ConsumePendingRedirect()
	if target == "" {
		target = "/"
	}

	if err := h.manager.Save(ctx, w, sess); err != nil {
		logger.Error().Err(err).Msg("failed to save session")
		response.WriteError(w, http.StatusInternalServerError, genericError)
		return
	}

	h.auditor.Login(identity.Subject, identity.Email)
	loginsTotal.WithLabelValues("success").Inc()
	http.Redirect(w, r, target, http.StatusFound)
}

// Logout clears the local session before redirecting to the provider's
// logout endpoint. Order matters: clearing after the redirect would leave a
// stale authenticated cookie if the provider-side logout fails.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	if err := h.manager.Clear(ctx, w, r); err != nil {
		logger.Error().Err(err).Msg("failed to clear session")
		response.WriteError(w, http.StatusInternalServerError, genericError)
		return
	}

	http.Redirect(w, r, h.logoutURL, http.StatusFound)
}

// rejectLogin maps a flow failure to its response category: client-caused
// mismatches get a 4xx, provider/infra failures a 5xx. The browser only ever
// sees the generic message.
func (h *Auth) rejectLogin(w http.ResponseWriter, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, oidc.ErrStateMismatch):
		logger.Warn().Err(err).Msg("login rejected: state mismatch")
		loginsTotal.WithLabelValues("state_mismatch").Inc()
		response.WriteError(w, http.StatusBadRequest, genericError)
	case errors.Is(err, oidc.ErrNonceMismatch):
		logger.Warn().Err(err).Msg("login rejected: nonce mismatch")
		loginsTotal.WithLabelValues("nonce_mismatch").Inc()
		response.WriteError(w, http.StatusBadRequest, genericError)
	case errors.Is(err, oidc.ErrTokenValidation):
		logger.Error().Err(err).Msg("login failed: token validation")
		loginsTotal.WithLabelValues("validation_failed").Inc()
		response.WriteError(w, http.StatusBadGateway, genericError)
	default:
		logger.Error().Err(err).Msg("login failed: token exchange")
		loginsTotal.WithLabelValues("exchange_failed").Inc()
		response.WriteError(w, http.StatusBadGateway, genericError)
	}
}
