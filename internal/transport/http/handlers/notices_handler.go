package handlers

import (
	"context"
	"net/http"

	redrepo "github.com/mbyo2/zambia-match-time/internal/repo/redis"
	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/transport/http/dto"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

type InboxReader interface {
	Drain(ctx context.Context, userID int64) ([]redrepo.InboxItem, error)
}

// NoticesHandler hands the caller's pending notices over once.
type NoticesHandler struct {
	inbox InboxReader
}

func NewNoticesHandler(inbox InboxReader) *NoticesHandler {
	return &NoticesHandler{inbox: inbox}
}

func (h *NoticesHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, httperrors.CodeUnauthorized, "authentication required")
		return
	}
	if h.inbox == nil {
		httperrors.Write(w, http.StatusOK, dto.NoticesResponse{Notices: []dto.NoticeItem{}})
		return
	}

	items, err := h.inbox.Drain(r.Context(), identity.UserID)
	if err != nil {
		writeUnavailable(w, "failed to load notices")
		return
	}

	notices := make([]dto.NoticeItem, 0, len(items))
	for _, item := range items {
		notices = append(notices, dto.NoticeItem{
			Kind:          item.Kind,
			Message:       item.Message,
			RequiredTier:  item.RequiredTier,
			RetryAfterSec: item.RetryAfterS,
			CreatedAt:     item.CreatedAt,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.NoticesResponse{Notices: notices})
}
