package model

import "time"

// RateLimitState is derived from the last limiter check only.
type RateLimitState struct {
	IsLimited        bool       `json:"is_limited"`
	RemainingQueries int        `json:"remaining_queries"`
	ResetTime        *time.Time `json:"reset_time,omitempty"`
}

type QuotaCheckResult struct {
	Allowed           bool `json:"allowed"`
	Blocked           bool `json:"blocked"`
	RemainingAttempts *int `json:"remaining_attempts,omitempty"`
}

// SwipeUsage is one row of the per-day swipe counter.
type SwipeUsage struct {
	UserID    int64     `json:"user_id"`
	DayKey    string    `json:"day_key"`
	Used      int       `json:"used"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditEntry struct {
	UserID     int64     `json:"user_id"`
	ActionType string    `json:"action_type"`
	Allowed    bool      `json:"allowed"`
	OccurredAt time.Time `json:"occurred_at"`
}
