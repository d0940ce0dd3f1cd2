package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/rate"
	"github.com/mbyo2/zambia-match-time/internal/services/session"
	"github.com/mbyo2/zambia-match-time/internal/services/swipes"
	"github.com/mbyo2/zambia-match-time/internal/transport/http/dto"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

type SessionProvider interface {
	Get(ctx context.Context, identity auth.Identity) (*session.Session, error)
}

// QuotaHandler exposes the session's subscription, swipe and rate limit views.
type QuotaHandler struct {
	sessions SessionProvider
	location *time.Location
	now      func() time.Time
}

func NewQuotaHandler(sessions SessionProvider, location *time.Location) *QuotaHandler {
	if location == nil {
		location = time.UTC
	}
	return &QuotaHandler{sessions: sessions, location: location, now: time.Now}
}

func (h *QuotaHandler) Subscription(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}
	httperrors.Write(w, http.StatusOK, subscriptionPayload(s))
}

func (h *QuotaHandler) RefreshSubscription(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}
	if err := s.Subscription.Refresh(r.Context()); err != nil {
		writeUnavailable(w, "failed to refresh subscription")
		return
	}
	httperrors.Write(w, http.StatusOK, subscriptionPayload(s))
}

func (h *QuotaHandler) SwipeQuota(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SwipeQuotaResponse{
		Tier:      s.Subscription.Tier().String(),
		Remaining: s.Swipes.Remaining(),
		Displayed: s.Swipes.Displayed(),
		CanSwipe:  s.Swipes.CanSwipe(),
		ResetAt:   rules.NextResetAt(h.now(), h.location),
	})
}

func (h *QuotaHandler) ConsumeSwipe(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	err := s.Swipes.Consume(r.Context())
	switch {
	case err == nil:
		httperrors.Write(w, http.StatusOK, dto.ConsumeSwipeResponse{
			OK:        true,
			Remaining: s.Swipes.Remaining(),
			Displayed: s.Swipes.Displayed(),
		})
	case errors.Is(err, swipes.ErrQuotaExceeded):
		current := s.Subscription.Tier()
		required := rules.UpgradeTarget(current)
		decision := s.Access.Check(required)
		httperrors.Write(w, http.StatusTooManyRequests, httperrors.UpgradeError{
			Code:         httperrors.CodeQuotaExceeded,
			Message:      "daily swipe limit reached",
			CurrentTier:  current.String(),
			RequiredTier: required.String(),
			PriceRef:     decision.PriceRef,
		})
	case errors.Is(err, swipes.ErrClosed):
		writeUnavailable(w, "session closed")
	default:
		writeUnavailable(w, "failed to record swipe")
	}
}

func (h *QuotaHandler) DiscoveryCheck(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}
	h.writeRateCheck(w, r, s.Discovery, enums.ActionDiscoverySearch)
}

func (h *QuotaHandler) ActionCheck(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	action := chi.URLParam(r, "action")
	limiter, err := s.Limiter(action)
	if err != nil {
		if errors.Is(err, model.ErrInvalidArgument) {
			writeBadRequest(w, httperrors.CodeValidation, "action is required")
			return
		}
		writeUnavailable(w, "session closed")
		return
	}
	h.writeRateCheck(w, r, limiter, action)
}

// QuotaCheck reports the remaining daily quota for an action without using it.
func (h *QuotaHandler) QuotaCheck(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	action := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "action")))
	result, err := s.CheckQuota(r.Context(), action)
	if err != nil {
		if errors.Is(err, model.ErrInvalidArgument) {
			writeBadRequest(w, httperrors.CodeValidation, "action is required")
			return
		}
		writeUnavailable(w, "failed to check quota")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.QuotaCheckResponse{Action: action, Result: result})
}

func (h *QuotaHandler) writeRateCheck(w http.ResponseWriter, r *http.Request, limiter *rate.Limiter, action string) {
	allowed := limiter.Check(r.Context(), action)
	state := limiter.State()
	if allowed {
		httperrors.Write(w, http.StatusOK, dto.RateCheckResponse{Allowed: true, State: state})
		return
	}

	httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
		Code:          httperrors.CodeRateLimited,
		Message:       "too many requests, try again later",
		RetryAfterSec: limiter.RetryAfterSeconds(),
		CooldownUntil: state.ResetTime,
	})
}

func (h *QuotaHandler) Access(w http.ResponseWriter, r *http.Request) {
	s, ok := sessionFromRequest(w, r, h.sessions)
	if !ok {
		return
	}

	required, err := enums.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		writeBadRequest(w, httperrors.CodeValidation, "unknown tier")
		return
	}

	decision := s.RequireTier(r.Context(), required)
	if !decision.Allowed {
		httperrors.Write(w, http.StatusForbidden, httperrors.UpgradeError{
			Code:         httperrors.CodeUpgradeRequired,
			Message:      "upgrade required",
			CurrentTier:  decision.Current.String(),
			RequiredTier: decision.Required.String(),
			PriceRef:     decision.PriceRef,
		})
		return
	}
	httperrors.Write(w, http.StatusOK, decision)
}

func subscriptionPayload(s *session.Session) dto.SubscriptionResponse {
	state := s.Subscription.State()
	return dto.SubscriptionResponse{
		Tier:            state.Tier.String(),
		Status:          state.Status,
		PeriodEnd:       state.PeriodEnd,
		RemainingSwipes: state.RemainingSwipes,
		DisplayedSwipes: rules.DisplaySwipes(state.Tier, state.RemainingSwipes),
		Loading:         state.Loading,
		Stale:           state.Stale,
		FetchedAt:       state.FetchedAt,
	}
}
