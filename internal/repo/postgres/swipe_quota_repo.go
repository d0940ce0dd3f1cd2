package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSwipeLimitReached = errors.New("swipe daily limit reached")

// SwipeQuotaRepo counts swipes per user and local calendar day.
type SwipeQuotaRepo struct {
	pool *pgxpool.Pool
}

func NewSwipeQuotaRepo(pool *pgxpool.Pool) *SwipeQuotaRepo {
	return &SwipeQuotaRepo{pool: pool}
}

func (r *SwipeQuotaRepo) GetUsed(ctx context.Context, userID int64, dayKey string) (int, error) {
	if userID <= 0 || strings.TrimSpace(dayKey) == "" {
		return 0, fmt.Errorf("invalid swipe quota lookup payload")
	}
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	var used int
	err := r.pool.QueryRow(ctx, `
SELECT swipes_used
FROM swipe_quotas
WHERE user_id = $1 AND day_key = $2::date
LIMIT 1
`, userID, dayKey).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get daily swipe usage: %w", err)
	}

	return used, nil
}

// Increment records one swipe without any cap and returns the new total.
func (r *SwipeQuotaRepo) Increment(ctx context.Context, userID int64, dayKey, timezone string) (int, error) {
	if userID <= 0 || strings.TrimSpace(dayKey) == "" {
		return 0, fmt.Errorf("invalid swipe quota update payload")
	}
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	var used int
	err := r.pool.QueryRow(ctx, `
INSERT INTO swipe_quotas (user_id, day_key, tz_name, swipes_used, updated_at)
VALUES ($1, $2::date, $3, 1, NOW())
ON CONFLICT (user_id, day_key) DO UPDATE SET
	swipes_used = swipe_quotas.swipes_used + 1,
	tz_name = EXCLUDED.tz_name,
	updated_at = NOW()
RETURNING swipes_used
`, userID, dayKey, normalizeTimezone(timezone)).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment daily swipe usage: %w", err)
	}

	return used, nil
}

// ConsumeWithLimit increments only while the day total is below limit.
// The check and the increment are one statement, so concurrent callers
// can never push the total past limit.
func (r *SwipeQuotaRepo) ConsumeWithLimit(ctx context.Context, userID int64, dayKey, timezone string, limit int) (int, error) {
	if userID <= 0 || strings.TrimSpace(dayKey) == "" {
		return 0, fmt.Errorf("invalid swipe quota consume payload")
	}
	if limit <= 0 {
		return 0, ErrSwipeLimitReached
	}
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	var used int
	err := r.pool.QueryRow(ctx, `
INSERT INTO swipe_quotas (user_id, day_key, tz_name, swipes_used, updated_at)
VALUES ($1, $2::date, $3, 1, NOW())
ON CONFLICT (user_id, day_key) DO UPDATE SET
	swipes_used = swipe_quotas.swipes_used + 1,
	tz_name = EXCLUDED.tz_name,
	updated_at = NOW()
WHERE swipe_quotas.swipes_used < $4
RETURNING swipes_used
`, userID, dayKey, normalizeTimezone(timezone), limit).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSwipeLimitReached
		}
		return 0, fmt.Errorf("consume swipe quota with limit: %w", err)
	}

	return used, nil
}

func normalizeTimezone(timezone string) string {
	if strings.TrimSpace(timezone) == "" {
		return "UTC"
	}
	return strings.TrimSpace(timezone)
}
