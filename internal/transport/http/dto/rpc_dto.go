package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
)

// Wire types for the /rpc counter operations. The remote client and the
// RPC handlers share them.

type RPCUserRequest struct {
	UserID int64 `json:"user_id"`
}

type RPCCountAuditedRequest struct {
	UserID     int64     `json:"user_id"`
	ActionType string    `json:"action_type"`
	Since      time.Time `json:"since"`
}

type RPCGenericRateLimitRequest struct {
	UserID        int64  `json:"user_id"`
	ActionType    string `json:"action_type"`
	MaxAttempts   int    `json:"max_attempts"`
	WindowMinutes int    `json:"window_minutes"`
}

type RPCTryConsumeRequest struct {
	UserID   int64  `json:"user_id"`
	Resource string `json:"resource"`
}

type RPCDailyRewardRequest struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
}

type RPCClaimRewardRequest struct {
	RewardID uuid.UUID `json:"reward_id"`
}

type RPCAllowedResponse struct {
	Allowed bool `json:"allowed"`
}

type RPCCountResponse struct {
	Count int `json:"count"`
}

type RPCSubscriptionResponse struct {
	Subscription *model.SubscriptionRecord `json:"subscription"`
}

type RPCRemainingResponse struct {
	Remaining *int `json:"remaining"`
}

type RPCRewardResponse struct {
	Reward model.DailyReward `json:"reward"`
}

type RPCOKResponse struct {
	OK bool `json:"ok"`
}
