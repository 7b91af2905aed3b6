package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/authgate/internal/api/response"
	"github.com/edvin/authgate/internal/session"
)

type Home struct {
	manager *session.Manager
}

func NewHome(manager *session.Manager) *Home {
	return &Home{manager: manager}
}

// Get renders the home/status page for the current session. Always 200;
// anonymous visitors just see authenticated=false.
func (h *Home) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.manager.Get(r.Context(), r)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("session store unavailable")
		response.WriteError(w, http.StatusInternalServerError, "an error occurred")
		return
	}

	if !sess.Authenticated() {
		response.WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"principal":     principalView(sess.Principal),
	})
}

func principalView(p *session.Principal) map[string]any {
	return map[string]any{
		"subject":  p.Identity.Subject,
		"email":    p.Identity.Email,
		"name":     p.Identity.Name,
		"login_at": p.LoginAt,
	}
}
