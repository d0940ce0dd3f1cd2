package handlers

import (
	"errors"
	"net/http"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/services/access"
	"github.com/mbyo2/zambia-match-time/internal/services/payments"
	"github.com/mbyo2/zambia-match-time/internal/transport/http/dto"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

type BillingHandler struct {
	sessions SessionProvider
}

func NewBillingHandler(sessions SessionProvider) *BillingHandler {
	return &BillingHandler{sessions: sessions}
}

func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, httperrors.CodeValidation, "invalid request body")
		return
	}
	required, err := enums.ParseTier(req.Tier)
	if err != nil || !required.IsPaid() {
		writeBadRequest(w, httperrors.CodeValidation, "tier must be a paid tier")
		return
	}

	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	url, err := s.Access.Upgrade(r.Context(), required)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.URLResponse{URL: url})
}

func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	url, err := s.Access.ManageBilling(r.Context())
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httperrors.Write(w, http.StatusOK, dto.URLResponse{URL: url})
}

func writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, access.ErrAlreadyEntitled):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{
			Code:    "ALREADY_ENTITLED",
			Message: "current plan already includes this tier",
		})
	case errors.Is(err, payments.ErrNoPrice):
		writeBadRequest(w, httperrors.CodeValidation, "tier cannot be purchased")
	case errors.Is(err, payments.ErrNotConfigured):
		httperrors.Write(w, http.StatusNotImplemented, httperrors.APIError{
			Code:    "BILLING_NOT_CONFIGURED",
			Message: "billing is not configured",
		})
	default:
		httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
			Code:    httperrors.CodeBackendUnavailable,
			Message: "billing provider request failed",
		})
	}
}
