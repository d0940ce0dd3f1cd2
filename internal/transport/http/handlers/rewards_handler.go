package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/rewards"
	"github.com/mbyo2/zambia-match-time/internal/transport/http/dto"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

type RewardService interface {
	Today(ctx context.Context, userID int64) (model.DailyReward, error)
	Claim(ctx context.Context, userID int64) (model.DailyReward, error)
	NextAvailableAt() time.Time
}

type RewardsHandler struct {
	service RewardService
}

func NewRewardsHandler(service RewardService) *RewardsHandler {
	return &RewardsHandler{service: service}
}

func (h *RewardsHandler) Today(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, RewardService.Today)
}

func (h *RewardsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, RewardService.Claim)
}

func (h *RewardsHandler) respond(w http.ResponseWriter, r *http.Request, op func(RewardService, context.Context, int64) (model.DailyReward, error)) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, httperrors.CodeUnauthorized, "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, httperrors.CodeInternal, "reward service is unavailable")
		return
	}

	reward, err := op(h.service, r.Context(), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, rewards.ErrAlreadyClaimed):
			httperrors.Write(w, http.StatusConflict, httperrors.APIError{
				Code:    httperrors.CodeRewardAlreadyClaimed,
				Message: "today's reward was already claimed",
			})
		case errors.Is(err, model.ErrRewardNotFound):
			httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
				Code:    httperrors.CodeRewardNotFound,
				Message: "reward not found",
			})
		case errors.Is(err, model.ErrInvalidArgument):
			writeBadRequest(w, httperrors.CodeValidation, "invalid user")
		default:
			writeUnavailable(w, "failed to load daily reward")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.RewardResponse{
		Reward:          reward,
		NextAvailableAt: h.service.NextAvailableAt(),
	})
}
