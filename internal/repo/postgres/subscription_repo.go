package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
)

var ErrInvalidSubscription = errors.New("invalid subscription payload")

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

// Get returns the stored subscription row. found is false when the user never subscribed.
func (r *SubscriptionRepo) Get(ctx context.Context, userID int64) (model.SubscriptionRecord, bool, error) {
	if userID <= 0 {
		return model.SubscriptionRecord{}, false, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.SubscriptionRecord{}, false, ErrPoolUnavailable
	}

	var (
		rawTier   string
		status    string
		periodEnd *time.Time
	)
	err := r.pool.QueryRow(ctx, `
SELECT tier, status, current_period_end
FROM subscriptions
WHERE user_id = $1
LIMIT 1
`, userID).Scan(&rawTier, &status, &periodEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SubscriptionRecord{}, false, nil
		}
		return model.SubscriptionRecord{}, false, fmt.Errorf("get subscription: %w", err)
	}

	tier, err := enums.ParseTier(rawTier)
	if err != nil {
		return model.SubscriptionRecord{}, false, fmt.Errorf("decode subscription tier: %w", err)
	}

	return model.SubscriptionRecord{
		UserID:    userID,
		Tier:      tier,
		Status:    status,
		PeriodEnd: periodEnd,
	}, true, nil
}

func (r *SubscriptionRepo) Upsert(ctx context.Context, record model.SubscriptionRecord) error {
	if record.UserID <= 0 || !record.Tier.Valid() {
		return ErrInvalidSubscription
	}
	if r.pool == nil {
		return ErrPoolUnavailable
	}
	status := strings.TrimSpace(record.Status)
	if status == "" {
		status = model.SubscriptionStatusActive
	}

	_, err := r.pool.Exec(ctx, `
INSERT INTO subscriptions (user_id, tier, status, current_period_end, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (user_id) DO UPDATE SET
	tier = EXCLUDED.tier,
	status = EXCLUDED.status,
	current_period_end = EXCLUDED.current_period_end,
	updated_at = NOW()
`, record.UserID, record.Tier.String(), status, record.PeriodEnd)
	if err != nil {
		if pgErrorCode(err) == pgCodeCheckViolation {
			return ErrInvalidSubscription
		}
		return fmt.Errorf("upsert subscription: %w", err)
	}

	return nil
}
