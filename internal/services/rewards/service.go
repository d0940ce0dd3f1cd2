// Package rewards hands out one daily reward per user and local day.
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
)

var ErrAlreadyClaimed = model.ErrRewardAlreadyClaimed

type Store interface {
	GetOrCreateDailyReward(ctx context.Context, userID int64, date string) (model.DailyReward, error)
	ClaimDailyReward(ctx context.Context, rewardID uuid.UUID) (model.DailyReward, error)
}

type Service struct {
	store    Store
	location *time.Location
	now      func() time.Time
}

func NewService(store Store, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{store: store, location: location, now: time.Now}
}

// Today returns the caller's reward for the current local day, creating it on first access.
func (s *Service) Today(ctx context.Context, userID int64) (model.DailyReward, error) {
	if userID <= 0 {
		return model.DailyReward{}, model.ErrInvalidArgument
	}

	reward, err := s.store.GetOrCreateDailyReward(ctx, userID, rules.DayKey(s.now(), s.location))
	if err != nil {
		return model.DailyReward{}, fmt.Errorf("get daily reward: %w", err)
	}
	return reward, nil
}

func (s *Service) Claim(ctx context.Context, userID int64) (model.DailyReward, error) {
	reward, err := s.Today(ctx, userID)
	if err != nil {
		return model.DailyReward{}, err
	}
	if reward.Claimed {
		return model.DailyReward{}, ErrAlreadyClaimed
	}

	claimed, err := s.store.ClaimDailyReward(ctx, reward.ID)
	if err != nil {
		return model.DailyReward{}, fmt.Errorf("claim daily reward: %w", err)
	}
	return claimed, nil
}

// NextAvailableAt is when the following day's reward can be created.
func (s *Service) NextAvailableAt() time.Time {
	return rules.NextResetAt(s.now(), s.location)
}
