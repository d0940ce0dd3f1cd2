// Package ledger is the only path from the engine to the server-side counters.
// It holds no counter state of its own.
package ledger

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
)

var ErrUnsupportedAction = errors.New("action has no daily quota")

type Backend interface {
	CheckDiscoveryRateLimit(ctx context.Context, userID int64) (bool, error)
	CheckGenericRateLimit(ctx context.Context, userID int64, actionType string, maxAttempts, windowMinutes int) (bool, error)
	CountRecentAuditedActions(ctx context.Context, userID int64, actionType string, since time.Time) (int, error)
	GetDailySwipeRemaining(ctx context.Context, userID int64) (*int, error)
	IncrementSwipeCount(ctx context.Context, userID int64) error
	TryConsume(ctx context.Context, userID int64, resource string) (bool, error)
}

type Client struct {
	backend  Backend
	metrics  *metrics.Metrics
	logger   *zap.Logger
	inFlight atomic.Int64
}

func New(backend Backend, m *metrics.Metrics, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, metrics: m, logger: logger}
}

// Check queries the remaining daily quota for action without consuming it.
// Actions without a daily counter are reported as allowed with no remaining value.
func (c *Client) Check(ctx context.Context, userID int64, action string) (model.QuotaCheckResult, error) {
	if normalizeAction(action) != enums.ActionSwipe {
		return model.QuotaCheckResult{Allowed: true}, nil
	}

	remaining, err := c.Remaining(ctx, userID)
	if err != nil {
		return model.QuotaCheckResult{}, err
	}
	if remaining == nil {
		return model.QuotaCheckResult{Allowed: true}, nil
	}

	left := *remaining
	return model.QuotaCheckResult{
		Allowed:           left > 0,
		Blocked:           left <= 0,
		RemainingAttempts: &left,
	}, nil
}

// Increment records an action that already happened.
func (c *Client) Increment(ctx context.Context, userID int64, action string) error {
	if normalizeAction(action) != enums.ActionSwipe {
		return ErrUnsupportedAction
	}
	return c.track(userID, "increment_swipe_count", func() error {
		return c.backend.IncrementSwipeCount(ctx, userID)
	})
}

// TryConsume checks and records one unit of resource in a single remote step.
func (c *Client) TryConsume(ctx context.Context, userID int64, resource string) (bool, error) {
	var ok bool
	err := c.track(userID, "try_consume", func() error {
		var err error
		ok, err = c.backend.TryConsume(ctx, userID, normalizeAction(resource))
		return err
	})
	return ok, err
}

func (c *Client) Remaining(ctx context.Context, userID int64) (*int, error) {
	var remaining *int
	err := c.track(userID, "get_daily_swipe_remaining", func() error {
		var err error
		remaining, err = c.backend.GetDailySwipeRemaining(ctx, userID)
		return err
	})
	return remaining, err
}

func (c *Client) CheckDiscovery(ctx context.Context, userID int64) (bool, error) {
	var allowed bool
	err := c.track(userID, "check_discovery_rate_limit", func() error {
		var err error
		allowed, err = c.backend.CheckDiscoveryRateLimit(ctx, userID)
		return err
	})
	return allowed, err
}

func (c *Client) CheckGeneric(ctx context.Context, userID int64, action string, maxAttempts int, window time.Duration) (bool, error) {
	var allowed bool
	err := c.track(userID, "check_generic_rate_limit", func() error {
		var err error
		allowed, err = c.backend.CheckGenericRateLimit(ctx, userID, normalizeAction(action), maxAttempts, windowMinutes(window))
		return err
	})
	return allowed, err
}

func (c *Client) CountRecent(ctx context.Context, userID int64, action string, since time.Time) (int, error) {
	var count int
	err := c.track(userID, "count_recent_audited_actions", func() error {
		var err error
		count, err = c.backend.CountRecentAuditedActions(ctx, userID, normalizeAction(action), since)
		return err
	})
	return count, err
}

func (c *Client) InFlight() int {
	return int(c.inFlight.Load())
}

func (c *Client) track(userID int64, op string, fn func() error) error {
	c.inFlight.Add(1)
	c.metrics.RemoteStarted()
	defer func() {
		c.inFlight.Add(-1)
		c.metrics.RemoteFinished()
	}()

	err := fn()
	if err != nil {
		c.metrics.RemoteError(op)
		c.logger.Debug("ledger call failed",
			zap.Error(err),
			zap.String("op", op),
			zap.Int64("user_id", userID),
		)
	}
	return err
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

// windowMinutes rounds up so a sub-minute window never becomes zero.
func windowMinutes(window time.Duration) int {
	minutes := int(window / time.Minute)
	if window%time.Minute != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
