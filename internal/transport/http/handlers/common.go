package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/session"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

const maxBodyBytes = 64 << 10

// decodeJSON rejects unknown fields. An empty body leaves target untouched.
func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

func writeUnavailable(w http.ResponseWriter, message string) {
	httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
		Code:    httperrors.CodeBackendUnavailable,
		Message: message,
	})
}

// sessionFromRequest resolves the caller's quota session and writes the
// error response itself when it cannot.
func sessionFromRequest(w http.ResponseWriter, r *http.Request, sessions SessionProvider) (*session.Session, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, httperrors.CodeUnauthorized, "authentication required")
		return nil, false
	}
	if sessions == nil {
		writeInternal(w, httperrors.CodeInternal, "session manager is unavailable")
		return nil, false
	}

	s, err := sessions.Get(r.Context(), identity)
	switch {
	case err == nil:
		return s, true
	case errors.Is(err, auth.ErrUnauthorized):
		writeUnauthorized(w, httperrors.CodeUnauthorized, "session does not belong to caller")
	case errors.Is(err, session.ErrClosed):
		writeUnavailable(w, "server is shutting down")
	default:
		writeInternal(w, httperrors.CodeInternal, "failed to open session")
	}
	return nil, false
}
