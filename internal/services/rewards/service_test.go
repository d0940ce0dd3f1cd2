package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
)

type memoryStore struct {
	rows  map[string]model.DailyReward
	dates []string
}

func (m *memoryStore) GetOrCreateDailyReward(_ context.Context, userID int64, date string) (model.DailyReward, error) {
	m.dates = append(m.dates, date)
	if row, ok := m.rows[date]; ok {
		return row, nil
	}
	row := model.DailyReward{ID: uuid.New(), UserID: userID, Type: enums.RewardTypePoints, Value: 10, Date: date}
	m.rows[date] = row
	return row, nil
}

func (m *memoryStore) ClaimDailyReward(_ context.Context, rewardID uuid.UUID) (model.DailyReward, error) {
	for date, row := range m.rows {
		if row.ID == rewardID {
			if row.Claimed {
				return model.DailyReward{}, model.ErrRewardAlreadyClaimed
			}
			row.Claimed = true
			m.rows[date] = row
			return row, nil
		}
	}
	return model.DailyReward{}, model.ErrRewardNotFound
}

func TestTodayUsesLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Lusaka")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store := &memoryStore{rows: map[string]model.DailyReward{}}
	service := NewService(store, loc)
	service.now = func() time.Time { return time.Date(2026, 2, 9, 22, 30, 0, 0, time.UTC) } // 00:30 local

	reward, err := service.Today(context.Background(), 3)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if reward.Date != "2026-02-10" {
		t.Fatalf("expected local day key, got %s", reward.Date)
	}
	if want := time.Date(2026, 2, 10, 22, 0, 0, 0, time.UTC); !service.NextAvailableAt().Equal(want) {
		t.Fatalf("unexpected next reset: %s", service.NextAvailableAt())
	}
}

func TestClaimOnlyOnce(t *testing.T) {
	store := &memoryStore{rows: map[string]model.DailyReward{}}
	service := NewService(store, time.UTC)

	claimed, err := service.Claim(context.Background(), 3)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed.Claimed {
		t.Fatalf("expected claimed reward")
	}
	if _, err := service.Claim(context.Background(), 3); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if _, err := service.Today(context.Background(), 0); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for missing user, got %v", err)
	}
}
