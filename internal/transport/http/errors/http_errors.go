package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnsupportedResource  = "UNSUPPORTED_RESOURCE"
	CodeRewardNotFound       = "REWARD_NOT_FOUND"
	CodeRewardAlreadyClaimed = "REWARD_ALREADY_CLAIMED"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeUpgradeRequired      = "UPGRADE_REQUIRED"
	CodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RateLimitError struct {
	Code          string     `json:"code"`
	Message       string     `json:"message"`
	RetryAfterSec int64      `json:"retry_after_sec"`
	CooldownUntil *time.Time `json:"cooldown_until"`
}

type UpgradeError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	CurrentTier  string `json:"current_tier"`
	RequiredTier string `json:"required_tier"`
	PriceRef     string `json:"price_ref,omitempty"`
}

func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
