package handler

import (
	"net/http"

	"github.com/edvin/authgate/internal/api/middleware"
	"github.com/edvin/authgate/internal/api/response"
)

type Protected struct{}

func NewProtected() *Protected {
	return &Protected{}
}

// Get renders the gated resource. The RequireAuth middleware has already
// rejected anonymous requests, so the session here always has a principal.
func (h *Protected) Get(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r.Context())
	if sess == nil || !sess.Authenticated() {
		response.WriteError(w, http.StatusInternalServerError, "an error occurred")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "protected content",
		"principal": principalView(sess.Principal),
	})
}
