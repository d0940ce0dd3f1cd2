// Package backend is the server-authoritative implementation of the counter
// operations: rate windows, the audit trail, daily swipe quotas,
// subscriptions and daily rewards.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
	pgrepo "github.com/mbyo2/zambia-match-time/internal/repo/postgres"
	redrepo "github.com/mbyo2/zambia-match-time/internal/repo/redis"
)

const subscriptionStatusExpired = "expired"

type SubscriptionStore interface {
	Get(ctx context.Context, userID int64) (model.SubscriptionRecord, bool, error)
}

type SwipeQuotaStore interface {
	GetUsed(ctx context.Context, userID int64, dayKey string) (int, error)
	Increment(ctx context.Context, userID int64, dayKey, timezone string) (int, error)
	ConsumeWithLimit(ctx context.Context, userID int64, dayKey, timezone string, limit int) (int, error)
}

type AuditStore interface {
	Record(ctx context.Context, entry model.AuditEntry) error
	CountSince(ctx context.Context, userID int64, actionType string, since time.Time) (int, error)
}

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type RewardStore interface {
	GetOrCreate(ctx context.Context, candidate model.DailyReward) (model.DailyReward, error)
	Claim(ctx context.Context, rewardID uuid.UUID, at time.Time) (model.DailyReward, error)
}

type Dependencies struct {
	Subscriptions SubscriptionStore
	SwipeQuotas   SwipeQuotaStore
	Audit         AuditStore
	Windows       WindowStore
	Rewards       RewardStore
}

type Config struct {
	FreeSwipesPerDay     int
	DiscoveryMaxAttempts int
	DiscoveryWindow      time.Duration
	Location             *time.Location
}

type Store struct {
	subscriptions SubscriptionStore
	swipeQuotas   SwipeQuotaStore
	audit         AuditStore
	windows       WindowStore
	rewards       RewardStore
	cfg           Config
	now           func() time.Time
	logger        *zap.Logger
}

func NewStore(deps Dependencies, cfg Config, logger *zap.Logger) *Store {
	if cfg.FreeSwipesPerDay <= 0 {
		cfg.FreeSwipesPerDay = rules.FreeSwipesPerDay
	}
	if cfg.DiscoveryMaxAttempts <= 0 {
		cfg.DiscoveryMaxAttempts = rules.DiscoveryMaxAttempts
	}
	if cfg.DiscoveryWindow <= 0 {
		cfg.DiscoveryWindow = rules.DiscoveryWindow
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		subscriptions: deps.Subscriptions,
		swipeQuotas:   deps.SwipeQuotas,
		audit:         deps.Audit,
		windows:       deps.Windows,
		rewards:       deps.Rewards,
		cfg:           cfg,
		now:           time.Now,
		logger:        logger,
	}
}

func (s *Store) CheckDiscoveryRateLimit(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, model.ErrInvalidArgument
	}
	return s.checkWindow(ctx, userID, enums.ActionDiscoverySearch, s.cfg.DiscoveryMaxAttempts, s.cfg.DiscoveryWindow)
}

func (s *Store) CheckGenericRateLimit(ctx context.Context, userID int64, actionType string, maxAttempts, windowMinutes int) (bool, error) {
	actionType = strings.TrimSpace(actionType)
	if userID <= 0 || actionType == "" || maxAttempts <= 0 || windowMinutes <= 0 {
		return false, model.ErrInvalidArgument
	}
	return s.checkWindow(ctx, userID, actionType, maxAttempts, time.Duration(windowMinutes)*time.Minute)
}

func (s *Store) checkWindow(ctx context.Context, userID int64, actionType string, maxAttempts int, window time.Duration) (bool, error) {
	if s.windows == nil {
		return false, fmt.Errorf("rate window store is not configured")
	}

	count, _, err := s.windows.IncrementWindow(ctx, redrepo.RateKey(actionType, userID), window)
	if err != nil {
		return false, fmt.Errorf("increment %s window: %w", actionType, err)
	}

	allowed := count <= int64(maxAttempts)
	s.recordAudit(ctx, userID, actionType, allowed)
	return allowed, nil
}

func (s *Store) CountRecentAuditedActions(ctx context.Context, userID int64, actionType string, since time.Time) (int, error) {
	actionType = strings.TrimSpace(actionType)
	if userID <= 0 || actionType == "" {
		return 0, model.ErrInvalidArgument
	}
	if s.audit == nil {
		return 0, fmt.Errorf("audit store is not configured")
	}

	count, err := s.audit.CountSince(ctx, userID, actionType, since)
	if err != nil {
		return 0, fmt.Errorf("count audited actions: %w", err)
	}
	return count, nil
}

// GetSubscription returns nil when the user has no row. The stored tier is
// returned whatever the status; only a period end that has passed moves the
// row to the free tier.
func (s *Store) GetSubscription(ctx context.Context, userID int64) (*model.SubscriptionRecord, error) {
	if userID <= 0 {
		return nil, model.ErrInvalidArgument
	}
	if s.subscriptions == nil {
		return nil, fmt.Errorf("subscription store is not configured")
	}

	record, found, err := s.subscriptions.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if !found {
		return nil, nil
	}

	if record.PeriodEnd != nil && !record.PeriodEnd.After(s.now()) {
		if record.Status == model.SubscriptionStatusActive {
			record.Status = subscriptionStatusExpired
		}
		record.Tier = enums.TierFree
	}

	return &record, nil
}

// GetDailySwipeRemaining returns nil for tiers without a daily swipe cap.
func (s *Store) GetDailySwipeRemaining(ctx context.Context, userID int64) (*int, error) {
	tier, err := s.tierOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tier.IsPaid() {
		return nil, nil
	}
	if s.swipeQuotas == nil {
		return nil, fmt.Errorf("swipe quota store is not configured")
	}

	used, err := s.swipeQuotas.GetUsed(ctx, userID, s.dayKey())
	if err != nil {
		return nil, fmt.Errorf("get swipe usage: %w", err)
	}

	remaining := rules.RemainingFromUsed(s.cfg.FreeSwipesPerDay, used)
	return &remaining, nil
}

func (s *Store) IncrementSwipeCount(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return model.ErrInvalidArgument
	}
	if s.swipeQuotas == nil {
		return fmt.Errorf("swipe quota store is not configured")
	}

	if _, err := s.swipeQuotas.Increment(ctx, userID, s.dayKey(), s.cfg.Location.String()); err != nil {
		return fmt.Errorf("increment swipe count: %w", err)
	}

	s.recordAudit(ctx, userID, enums.ActionSwipe, true)
	return nil
}

// TryConsume checks and increments the daily counter in one step. Paid tiers
// are counted but never refused.
func (s *Store) TryConsume(ctx context.Context, userID int64, resource string) (bool, error) {
	if strings.TrimSpace(resource) != enums.ResourceSwipe {
		return false, model.ErrUnsupportedResource
	}

	tier, err := s.tierOf(ctx, userID)
	if err != nil {
		return false, err
	}
	if s.swipeQuotas == nil {
		return false, fmt.Errorf("swipe quota store is not configured")
	}

	dayKey := s.dayKey()
	tz := s.cfg.Location.String()

	if tier.IsPaid() {
		if _, err := s.swipeQuotas.Increment(ctx, userID, dayKey, tz); err != nil {
			return false, fmt.Errorf("increment swipe count: %w", err)
		}
		s.recordAudit(ctx, userID, enums.ActionSwipe, true)
		return true, nil
	}

	if _, err := s.swipeQuotas.ConsumeWithLimit(ctx, userID, dayKey, tz, s.cfg.FreeSwipesPerDay); err != nil {
		if errors.Is(err, pgrepo.ErrSwipeLimitReached) {
			s.recordAudit(ctx, userID, enums.ActionSwipe, false)
			return false, nil
		}
		return false, fmt.Errorf("consume swipe quota: %w", err)
	}

	s.recordAudit(ctx, userID, enums.ActionSwipe, true)
	return true, nil
}

func (s *Store) GetOrCreateDailyReward(ctx context.Context, userID int64, date string) (model.DailyReward, error) {
	date = strings.TrimSpace(date)
	if userID <= 0 {
		return model.DailyReward{}, model.ErrInvalidArgument
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return model.DailyReward{}, model.ErrInvalidArgument
	}
	if s.rewards == nil {
		return model.DailyReward{}, fmt.Errorf("reward store is not configured")
	}

	draw := rules.RewardForDay(userID, date)
	reward, err := s.rewards.GetOrCreate(ctx, model.DailyReward{
		ID:     uuid.New(),
		UserID: userID,
		Type:   draw.Type,
		Value:  draw.Value,
		Date:   date,
	})
	if err != nil {
		return model.DailyReward{}, fmt.Errorf("get or create daily reward: %w", err)
	}

	return reward, nil
}

func (s *Store) ClaimDailyReward(ctx context.Context, rewardID uuid.UUID) (model.DailyReward, error) {
	if rewardID == uuid.Nil {
		return model.DailyReward{}, model.ErrInvalidArgument
	}
	if s.rewards == nil {
		return model.DailyReward{}, fmt.Errorf("reward store is not configured")
	}

	reward, err := s.rewards.Claim(ctx, rewardID, s.now())
	switch {
	case err == nil:
		return reward, nil
	case errors.Is(err, pgrepo.ErrRewardNotFound):
		return model.DailyReward{}, model.ErrRewardNotFound
	case errors.Is(err, pgrepo.ErrRewardAlreadyClaimed):
		return model.DailyReward{}, model.ErrRewardAlreadyClaimed
	default:
		return model.DailyReward{}, fmt.Errorf("claim daily reward: %w", err)
	}
}

func (s *Store) tierOf(ctx context.Context, userID int64) (enums.Tier, error) {
	record, err := s.GetSubscription(ctx, userID)
	if err != nil {
		return enums.TierFree, err
	}
	if record == nil {
		return enums.TierFree, nil
	}
	return record.Tier, nil
}

func (s *Store) dayKey() string {
	return rules.DayKey(s.now(), s.cfg.Location)
}

// recordAudit never fails the caller; a missing audit row only makes the
// remaining-attempts display optimistic.
func (s *Store) recordAudit(ctx context.Context, userID int64, actionType string, allowed bool) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, model.AuditEntry{
		UserID:     userID,
		ActionType: actionType,
		Allowed:    allowed,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit entry failed",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("action_type", actionType),
		)
	}
}
