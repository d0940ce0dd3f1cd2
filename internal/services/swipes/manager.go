// Package swipes gates swipe consumption against the daily quota of the
// caller's tier.
package swipes

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
	"github.com/mbyo2/zambia-match-time/internal/services/notify"
)

const metricsComponent = "swipes"

var (
	ErrQuotaExceeded = errors.New("daily swipe quota exceeded")
	ErrClosed        = errors.New("swipe manager closed")
)

type Ledger interface {
	Remaining(ctx context.Context, userID int64) (*int, error)
	Increment(ctx context.Context, userID int64, action string) error
	TryConsume(ctx context.Context, userID int64, resource string) (bool, error)
}

// TierSource is the session's subscription view.
type TierSource interface {
	Tier() enums.Tier
	NoteSwipeConsumed()
}

type Notifier interface {
	Notify(ctx context.Context, notice notify.Notice) bool
}

type Config struct {
	// AtomicConsume uses the single-step server consume instead of a local
	// check followed by an increment.
	AtomicConsume bool
}

type Manager struct {
	userID   int64
	ledger   Ledger
	tiers    TierSource
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      Config

	mu        sync.Mutex
	remaining int
	gen       uint64
	closed    bool
}

func NewManager(userID int64, ledger Ledger, tiers TierSource, notifier Notifier, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		userID:   userID,
		ledger:   ledger,
		tiers:    tiers,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Load replaces the local allowance with the server value. A missing value
// counts as zero. On error the current value is kept.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	remaining, err := m.ledger.Remaining(ctx, m.userID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return nil
	}
	if err != nil {
		m.logger.Warn("load swipe allowance failed",
			zap.Error(err),
			zap.Int64("user_id", m.userID),
		)
		return err
	}

	m.remaining = 0
	if remaining != nil {
		m.remaining = *remaining
	}
	return nil
}

// Sync adopts an allowance fetched elsewhere, such as a subscription refetch.
// Like Load it supersedes decrements of consumes that are still in flight.
func (m *Manager) Sync(remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.gen++
	if remaining < 0 {
		remaining = 0
	}
	m.remaining = remaining
}

// CanSwipe is a local check; paid tiers are never capped.
func (m *Manager) CanSwipe() bool {
	if m.tiers.Tier() != enums.TierFree {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining > 0
}

func (m *Manager) ConsumeSwipe(ctx context.Context) bool {
	return m.Consume(ctx) == nil
}

// Consume records one swipe on the server and then updates the local
// allowance. It returns ErrQuotaExceeded when the free allowance is used up.
func (m *Manager) Consume(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	gen := m.gen
	m.mu.Unlock()

	tier := m.tiers.Tier()
	if !m.CanSwipe() {
		m.quotaExceeded(ctx, tier)
		return ErrQuotaExceeded
	}

	if m.cfg.AtomicConsume {
		ok, err := m.ledger.TryConsume(ctx, m.userID, enums.ResourceSwipe)
		if err != nil {
			return m.remoteFailed(err)
		}
		if !ok {
			m.mu.Lock()
			if !m.closed {
				m.remaining = 0
			}
			m.mu.Unlock()
			m.quotaExceeded(ctx, tier)
			return ErrQuotaExceeded
		}
	} else if err := m.ledger.Increment(ctx, m.userID, enums.ActionSwipe); err != nil {
		return m.remoteFailed(err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	// a Load that started after this consume already saw the new count
	if tier == enums.TierFree && gen == m.gen && m.remaining > 0 {
		m.remaining--
	}
	m.mu.Unlock()

	m.tiers.NoteSwipeConsumed()
	m.metrics.Decision(metricsComponent, metrics.OutcomeAllowed)
	return nil
}

func (m *Manager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

// Displayed is what the client shows: the allowance for free users and the
// unlimited marker for paid tiers.
func (m *Manager) Displayed() int {
	return rules.DisplaySwipes(m.tiers.Tier(), m.Remaining())
}

func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Manager) quotaExceeded(ctx context.Context, tier enums.Tier) {
	m.metrics.Decision(metricsComponent, metrics.OutcomeDenied)
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, notify.Notice{
		UserID:       m.userID,
		Kind:         notify.KindQuotaExceeded,
		Message:      "You have used all of today's swipes. Upgrade to keep swiping.",
		RequiredTier: rules.UpgradeTarget(tier).String(),
	})
}

func (m *Manager) remoteFailed(err error) error {
	m.metrics.Decision(metricsComponent, metrics.OutcomeError)
	m.logger.Warn("consume swipe failed",
		zap.Error(err),
		zap.Int64("user_id", m.userID),
	)
	return err
}
