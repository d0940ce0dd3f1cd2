package dto

import (
	"time"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
)

type SubscriptionResponse struct {
	Tier            string     `json:"tier"`
	Status          string     `json:"status"`
	PeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	RemainingSwipes int        `json:"remaining_swipes"`
	DisplayedSwipes int        `json:"displayed_swipes"`
	Loading         bool       `json:"loading"`
	Stale           bool       `json:"stale"`
	FetchedAt       time.Time  `json:"fetched_at"`
}

type SwipeQuotaResponse struct {
	Tier      string    `json:"tier"`
	Remaining int       `json:"remaining"`
	Displayed int       `json:"displayed"`
	CanSwipe  bool      `json:"can_swipe"`
	ResetAt   time.Time `json:"reset_at"`
}

type ConsumeSwipeResponse struct {
	OK        bool `json:"ok"`
	Remaining int  `json:"remaining"`
	Displayed int  `json:"displayed"`
}

type QuotaCheckResponse struct {
	Action string                 `json:"action"`
	Result model.QuotaCheckResult `json:"result"`
}

type RateCheckResponse struct {
	Allowed bool                 `json:"allowed"`
	State   model.RateLimitState `json:"state"`
}

type CheckoutRequest struct {
	Tier string `json:"tier"`
}

type URLResponse struct {
	URL string `json:"url"`
}

type RewardResponse struct {
	Reward          model.DailyReward `json:"reward"`
	NextAvailableAt time.Time         `json:"next_available_at"`
}

type NoticeItem struct {
	Kind          string    `json:"kind"`
	Message       string    `json:"message"`
	RequiredTier  string    `json:"required_tier,omitempty"`
	RetryAfterSec int64     `json:"retry_after_sec,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type NoticesResponse struct {
	Notices []NoticeItem `json:"notices"`
}
