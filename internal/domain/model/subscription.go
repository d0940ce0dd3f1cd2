package model

import (
	"time"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
)

const SubscriptionStatusActive = "active"

// SubscriptionRecord is the backend row. A user without a row is on the free tier.
type SubscriptionRecord struct {
	UserID    int64      `json:"user_id"`
	Tier      enums.Tier `json:"tier"`
	Status    string     `json:"status"`
	PeriodEnd *time.Time `json:"current_period_end,omitempty"`
}

// SubscriptionState is the per-session cache of tier and swipe allowance.
// Stale is set by a local optimistic decrement and cleared by a refetch.
type SubscriptionState struct {
	Tier            enums.Tier `json:"tier"`
	Status          string     `json:"status"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	RemainingSwipes int        `json:"remaining_swipes"`
	Loading         bool       `json:"loading"`
	Stale           bool       `json:"stale"`
	FetchedAt       time.Time  `json:"fetched_at"`
}
