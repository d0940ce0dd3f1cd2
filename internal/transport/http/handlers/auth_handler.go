package handlers

import (
	"context"
	"net/http"

	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

type SessionRevoker interface {
	Revoke(ctx context.Context, sid string) error
}

type SessionEnder interface {
	End(sid string) bool
}

type AuthHandler struct {
	revoker  SessionRevoker
	sessions SessionEnder
}

func NewAuthHandler(revoker SessionRevoker, sessions SessionEnder) *AuthHandler {
	return &AuthHandler{revoker: revoker, sessions: sessions}
}

// Logout revokes the token's session id and tears down its quota session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, httperrors.CodeUnauthorized, "authentication required")
		return
	}

	if h.revoker != nil {
		if err := h.revoker.Revoke(r.Context(), identity.SID); err != nil {
			writeUnavailable(w, "failed to revoke session")
			return
		}
	}
	if h.sessions != nil {
		h.sessions.End(identity.SID)
	}

	httperrors.Write(w, http.StatusOK, map[string]bool{"ok": true})
}
