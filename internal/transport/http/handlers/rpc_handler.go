package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/infra/remote"
	"github.com/mbyo2/zambia-match-time/internal/transport/http/dto"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

// RPCBackend is the server-authoritative side of the counter operations.
type RPCBackend interface {
	CheckDiscoveryRateLimit(ctx context.Context, userID int64) (bool, error)
	CountRecentAuditedActions(ctx context.Context, userID int64, actionType string, since time.Time) (int, error)
	CheckGenericRateLimit(ctx context.Context, userID int64, actionType string, maxAttempts, windowMinutes int) (bool, error)
	GetSubscription(ctx context.Context, userID int64) (*model.SubscriptionRecord, error)
	GetDailySwipeRemaining(ctx context.Context, userID int64) (*int, error)
	IncrementSwipeCount(ctx context.Context, userID int64) error
	TryConsume(ctx context.Context, userID int64, resource string) (bool, error)
	GetOrCreateDailyReward(ctx context.Context, userID int64, date string) (model.DailyReward, error)
	ClaimDailyReward(ctx context.Context, rewardID uuid.UUID) (model.DailyReward, error)
}

type RPCHandler struct {
	backend RPCBackend
	logger  *zap.Logger
	ops     map[string]func(*http.Request) (any, error)
}

func NewRPCHandler(backend RPCBackend, logger *zap.Logger) *RPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &RPCHandler{backend: backend, logger: logger}
	h.ops = map[string]func(*http.Request) (any, error){
		remote.OpCheckDiscoveryRateLimit:   h.checkDiscovery,
		remote.OpCountRecentAuditedActions: h.countRecent,
		remote.OpCheckGenericRateLimit:     h.checkGeneric,
		remote.OpGetSubscription:           h.getSubscription,
		remote.OpGetDailySwipeRemaining:    h.getRemaining,
		remote.OpIncrementSwipeCount:       h.increment,
		remote.OpTryConsume:                h.tryConsume,
		remote.OpGetOrCreateDailyReward:    h.dailyReward,
		remote.OpClaimDailyReward:          h.claimReward,
	}
	return h
}

// Handle dispatches POST /rpc/{op}.
func (h *RPCHandler) Handle(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	fn, ok := h.ops[op]
	if !ok {
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: "UNKNOWN_OPERATION", Message: "unknown rpc operation"})
		return
	}
	if h.backend == nil {
		writeUnavailable(w, "backend is unavailable")
		return
	}

	out, err := fn(r)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	httperrors.Write(w, http.StatusOK, out)
}

func (h *RPCHandler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, errMalformedBody), errors.Is(err, model.ErrInvalidArgument):
		writeBadRequest(w, httperrors.CodeValidation, err.Error())
	case errors.Is(err, model.ErrUnsupportedResource):
		writeBadRequest(w, httperrors.CodeUnsupportedResource, "unsupported resource")
	case errors.Is(err, model.ErrRewardNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{Code: httperrors.CodeRewardNotFound, Message: "reward not found"})
	case errors.Is(err, model.ErrRewardAlreadyClaimed):
		httperrors.Write(w, http.StatusConflict, httperrors.APIError{Code: httperrors.CodeRewardAlreadyClaimed, Message: "reward already claimed"})
	default:
		h.logger.Warn("rpc operation failed", zap.String("op", op), zap.Error(err))
		writeUnavailable(w, "backend operation failed")
	}
}

var errMalformedBody = errors.New("malformed request body")

func decodeRPC[T any](r *http.Request) (T, error) {
	var req T
	if err := decodeJSON(r, &req); err != nil {
		return req, errMalformedBody
	}
	return req, nil
}

func (h *RPCHandler) checkDiscovery(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCUserRequest](r)
	if err != nil {
		return nil, err
	}
	allowed, err := h.backend.CheckDiscoveryRateLimit(r.Context(), req.UserID)
	return dto.RPCAllowedResponse{Allowed: allowed}, err
}

func (h *RPCHandler) countRecent(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCCountAuditedRequest](r)
	if err != nil {
		return nil, err
	}
	count, err := h.backend.CountRecentAuditedActions(r.Context(), req.UserID, req.ActionType, req.Since)
	return dto.RPCCountResponse{Count: count}, err
}

func (h *RPCHandler) checkGeneric(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCGenericRateLimitRequest](r)
	if err != nil {
		return nil, err
	}
	allowed, err := h.backend.CheckGenericRateLimit(r.Context(), req.UserID, req.ActionType, req.MaxAttempts, req.WindowMinutes)
	return dto.RPCAllowedResponse{Allowed: allowed}, err
}

func (h *RPCHandler) getSubscription(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCUserRequest](r)
	if err != nil {
		return nil, err
	}
	record, err := h.backend.GetSubscription(r.Context(), req.UserID)
	return dto.RPCSubscriptionResponse{Subscription: record}, err
}

func (h *RPCHandler) getRemaining(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCUserRequest](r)
	if err != nil {
		return nil, err
	}
	remaining, err := h.backend.GetDailySwipeRemaining(r.Context(), req.UserID)
	return dto.RPCRemainingResponse{Remaining: remaining}, err
}

func (h *RPCHandler) increment(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCUserRequest](r)
	if err != nil {
		return nil, err
	}
	return dto.RPCOKResponse{OK: true}, h.backend.IncrementSwipeCount(r.Context(), req.UserID)
}

func (h *RPCHandler) tryConsume(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCTryConsumeRequest](r)
	if err != nil {
		return nil, err
	}
	allowed, err := h.backend.TryConsume(r.Context(), req.UserID, req.Resource)
	return dto.RPCAllowedResponse{Allowed: allowed}, err
}

func (h *RPCHandler) dailyReward(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCDailyRewardRequest](r)
	if err != nil {
		return nil, err
	}
	reward, err := h.backend.GetOrCreateDailyReward(r.Context(), req.UserID, req.Date)
	return dto.RPCRewardResponse{Reward: reward}, err
}

func (h *RPCHandler) claimReward(r *http.Request) (any, error) {
	req, err := decodeRPC[dto.RPCClaimRewardRequest](r)
	if err != nil {
		return nil, err
	}
	reward, err := h.backend.ClaimDailyReward(r.Context(), req.RewardID)
	return dto.RPCRewardResponse{Reward: reward}, err
}
