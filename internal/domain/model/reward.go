package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
)

type DailyReward struct {
	ID        uuid.UUID        `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      enums.RewardType `json:"type"`
	Value     int              `json:"value"`
	Claimed   bool             `json:"claimed"`
	ClaimedAt *time.Time       `json:"claimed_at,omitempty"`
	Date      string           `json:"date"`
	CreatedAt time.Time        `json:"created_at"`
}
