// Package session owns the per-session quota state: one subscription
// resolver, one swipe manager and the rate limiters a signed-in client uses.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
	"github.com/mbyo2/zambia-match-time/internal/services/access"
	"github.com/mbyo2/zambia-match-time/internal/services/notify"
	"github.com/mbyo2/zambia-match-time/internal/services/rate"
	"github.com/mbyo2/zambia-match-time/internal/services/subscription"
	"github.com/mbyo2/zambia-match-time/internal/services/swipes"
)

type Session struct {
	ID     string
	UserID int64

	Subscription *subscription.Resolver
	Swipes       *swipes.Manager
	Discovery    *rate.Limiter
	Access       *access.Gate

	manager *Manager

	loadMu sync.Mutex
	loaded bool

	mu       sync.Mutex
	generic  map[string]*rate.Limiter
	lastSeen time.Time
	closed   bool
}

// initialLoadTimeout bounds the first fetch, which is detached from the
// request that created the session.
const initialLoadTimeout = 10 * time.Second

func newSession(m *Manager, sid string, userID int64) *Session {
	resolver := subscription.NewResolver(userID, m.subscriptions, m.ledger, m.logger)
	s := &Session{
		ID:           sid,
		UserID:       userID,
		Subscription: resolver,
		Swipes:       swipes.NewManager(userID, m.ledger, resolver, m.notifier, m.metrics, m.logger, m.cfg.Swipes),
		Discovery:    rate.NewLimiter(m.cfg.Discovery, m.ledger, m.notifier, m.metrics, m.logger),
		Access:       access.NewGate(userID, resolver, m.prices, m.payments, m.logger),
		manager:      m,
		generic:      make(map[string]*rate.Limiter),
		lastSeen:     m.now(),
	}

	// Every successful fetch, including an explicit refresh, carries the
	// server allowance, and it replaces the swipe gate's counter. Closing the
	// resolver drops the listener.
	resolver.Subscribe(func(_ context.Context, previous, current model.SubscriptionState) {
		s.Swipes.Sync(current.RemainingSwipes)
		if previous.Tier != current.Tier {
			m.logger.Debug("subscription tier changed",
				zap.Int64("user_id", userID),
				zap.String("previous_tier", previous.Tier.String()),
				zap.String("current_tier", current.Tier.String()),
			)
		}
	})
	return s
}

// load performs the initial subscription fetch until one succeeds. Failures
// are logged and leave the defaults in place so the session stays usable; the
// next request for the session tries again.
func (s *Session) load(ctx context.Context) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), initialLoadTimeout)
	defer cancel()

	m := s.manager
	err := s.Subscription.Fetch(ctx)
	if err == nil {
		s.loaded = true
		return
	}
	m.logger.Warn("initial subscription fetch failed", zap.Error(err), zap.Int64("user_id", s.UserID))

	// the allowance alone still gates free swipes
	if err := s.Swipes.Load(ctx); err != nil {
		m.logger.Warn("initial swipe load failed", zap.Error(err), zap.Int64("user_id", s.UserID))
	}
}

// CheckQuota asks the server how much of the daily quota for action is left
// without consuming any of it.
func (s *Session) CheckQuota(ctx context.Context, action string) (model.QuotaCheckResult, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return model.QuotaCheckResult{}, fmt.Errorf("%w: empty action type", model.ErrInvalidArgument)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return model.QuotaCheckResult{}, ErrClosed
	}
	return s.manager.ledger.Check(ctx, s.UserID, action)
}

// Limiter returns the limiter guarding action, creating a generic one on first use.
func (s *Session) Limiter(action string) (*rate.Limiter, error) {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return nil, fmt.Errorf("%w: empty action type", model.ErrInvalidArgument)
	}
	if action == s.Discovery.Policy().Action {
		return s.Discovery, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if limiter, ok := s.generic[action]; ok {
		return limiter, nil
	}

	m := s.manager
	limiter := rate.NewLimiter(m.cfg.policyFor(action), m.ledger, m.notifier, m.metrics, m.logger)
	s.generic[action] = limiter
	return limiter, nil
}

// RequireTier checks the gate and leaves an upgrade notice when access is denied.
func (s *Session) RequireTier(ctx context.Context, required enums.Tier) access.Decision {
	decision := s.Access.Check(required)
	if decision.Allowed {
		s.manager.metrics.Decision("access", metrics.OutcomeAllowed)
		return decision
	}

	s.manager.metrics.Decision("access", metrics.OutcomeDenied)
	if s.manager.notifier != nil {
		s.manager.notifier.Notify(ctx, notify.Notice{
			UserID:       s.UserID,
			Kind:         notify.KindUpgradeRequired,
			Message:      fmt.Sprintf("This feature needs the %s plan.", required),
			RequiredTier: required.String(),
		})
	}
	return decision
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Close tears down every component. Results of calls still in flight are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	limiters := make([]*rate.Limiter, 0, len(s.generic))
	for _, limiter := range s.generic {
		limiters = append(limiters, limiter)
	}
	s.mu.Unlock()

	s.Subscription.Close()
	s.Swipes.Close()
	s.Discovery.Close()
	for _, limiter := range limiters {
		limiter.Close()
	}
}
