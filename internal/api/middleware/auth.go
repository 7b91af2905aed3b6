package middleware

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/authgate/internal/api/response"
	"github.com/edvin/authgate/internal/audit"
	"github.com/edvin/authgate/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// RequireAuth gates a route group behind an authenticated session. An
// anonymous request gets its path recorded as the post-login redirect target
// (overwriting any stale value, so only the latest attempt is honored) and is
// bounced to /login. Authenticated requests get the session injected into the
// context and an access-audit event emitted.
func RequireAuth(manager *session.Manager, auditor *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := zerolog.Ctx(ctx)

			sess, err := manager.Get(ctx, r)
			if err != nil {
				logger.Error().Err(err).Msg("session store unavailable")
				response.WriteError(w, http.StatusInternalServerError, "an error occurred")
				return
			}

			if !sess.Authenticated() {
				sess.PendingRedirect = r.URL.Path
				if err := manager.Save(ctx, w, sess); err != nil {
					logger.Error().Err(err).Msg("failed to save session")
					response.WriteError(w, http.StatusInternalServerError, "an error occurred")
					return
				}

				auditor.Unauthorized(r.URL.Path)
				http.Redirect(w, r, "/login", http.StatusFound)
				return
			}

			auditor.Access(sess.Principal.Identity.Subject, sess.Principal.Identity.Email, r.URL.Path)

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey, sess)))
		})
	}
}

// GetSession extracts the authenticated session placed by RequireAuth.
func GetSession(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}
