package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
)

var (
	ErrRewardNotFound       = errors.New("daily reward not found")
	ErrRewardAlreadyClaimed = errors.New("daily reward already claimed")
)

type RewardRepo struct {
	pool *pgxpool.Pool
}

func NewRewardRepo(pool *pgxpool.Pool) *RewardRepo {
	return &RewardRepo{pool: pool}
}

// GetOrCreate inserts candidate unless a row for (user, date) exists and
// returns whichever row is stored. Concurrent callers all observe the same row.
func (r *RewardRepo) GetOrCreate(ctx context.Context, candidate model.DailyReward) (model.DailyReward, error) {
	if candidate.UserID <= 0 || strings.TrimSpace(candidate.Date) == "" || !candidate.Type.Valid() {
		return model.DailyReward{}, fmt.Errorf("invalid daily reward payload")
	}
	if r.pool == nil {
		return model.DailyReward{}, ErrPoolUnavailable
	}
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO daily_rewards (id, user_id, reward_type, reward_value, reward_date)
VALUES ($1, $2, $3, $4, $5::date)
ON CONFLICT (user_id, reward_date) DO NOTHING
`, candidate.ID, candidate.UserID, string(candidate.Type), candidate.Value, candidate.Date); err != nil {
		return model.DailyReward{}, fmt.Errorf("insert daily reward: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, reward_type, reward_value, claimed, claimed_at, reward_date::text, created_at
FROM daily_rewards
WHERE user_id = $1 AND reward_date = $2::date
LIMIT 1
`, candidate.UserID, candidate.Date)

	reward, err := scanReward(row)
	if err != nil {
		return model.DailyReward{}, fmt.Errorf("get daily reward: %w", err)
	}

	return reward, nil
}

func (r *RewardRepo) Claim(ctx context.Context, rewardID uuid.UUID, at time.Time) (model.DailyReward, error) {
	if rewardID == uuid.Nil {
		return model.DailyReward{}, ErrRewardNotFound
	}

	var claimed model.DailyReward
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		current, err := scanReward(tx.QueryRow(ctx, `
SELECT id, user_id, reward_type, reward_value, claimed, claimed_at, reward_date::text, created_at
FROM daily_rewards
WHERE id = $1
FOR UPDATE
`, rewardID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRewardNotFound
			}
			return fmt.Errorf("lock daily reward: %w", err)
		}
		if current.Claimed {
			return ErrRewardAlreadyClaimed
		}

		claimedAt := at.UTC()
		if _, err := tx.Exec(ctx, `
UPDATE daily_rewards
SET claimed = TRUE, claimed_at = $2
WHERE id = $1
`, rewardID, claimedAt); err != nil {
			return fmt.Errorf("claim daily reward: %w", err)
		}

		current.Claimed = true
		current.ClaimedAt = &claimedAt
		claimed = current
		return nil
	})
	if err != nil {
		return model.DailyReward{}, err
	}

	return claimed, nil
}

func scanReward(row pgx.Row) (model.DailyReward, error) {
	var (
		reward  model.DailyReward
		rawType string
	)
	if err := row.Scan(
		&reward.ID,
		&reward.UserID,
		&rawType,
		&reward.Value,
		&reward.Claimed,
		&reward.ClaimedAt,
		&reward.Date,
		&reward.CreatedAt,
	); err != nil {
		return model.DailyReward{}, err
	}
	reward.Type = enums.RewardType(rawType)
	return reward, nil
}
