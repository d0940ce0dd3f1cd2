package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/ledger"
	"github.com/mbyo2/zambia-match-time/internal/services/notify"
	"github.com/mbyo2/zambia-match-time/internal/services/payments"
	"github.com/mbyo2/zambia-match-time/internal/services/rate"
	"github.com/mbyo2/zambia-match-time/internal/services/subscription"
	"github.com/mbyo2/zambia-match-time/internal/services/swipes"
)

var ErrClosed = errors.New("session manager closed")

type Notifier interface {
	Notify(ctx context.Context, notice notify.Notice) bool
}

type Config struct {
	Discovery rate.Policy
	// Generic is the template for actions without an entry in Actions.
	Generic rate.Policy
	Actions map[string]rate.Policy
	Swipes  swipes.Config
}

func (c Config) policyFor(action string) rate.Policy {
	policy, ok := c.Actions[action]
	if !ok {
		policy = c.Generic
	}
	policy.Action = action
	policy.Kind = rate.KindGeneric
	return policy
}

type Dependencies struct {
	Ledger        *ledger.Client
	Subscriptions subscription.Source
	Prices        payments.PriceBook
	Payments      payments.Client
	Notifier      Notifier
}

// Manager keys sessions by the token's session id. Each session is built and
// loaded once; concurrent first requests wait for the same load.
type Manager struct {
	ledger        *ledger.Client
	subscriptions subscription.Source
	prices        payments.PriceBook
	payments      payments.Client
	notifier      Notifier
	cfg           Config
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(deps Dependencies, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Discovery.Action == "" {
		cfg.Discovery = rate.DiscoveryPolicy()
	}
	cfg.Discovery.Kind = rate.KindDiscovery
	if cfg.Generic.MaxAttempts <= 0 || cfg.Generic.Window <= 0 {
		cfg.Generic = rate.GenericPolicy("")
	}

	actions := make(map[string]rate.Policy, len(cfg.Actions))
	for action, policy := range cfg.Actions {
		actions[strings.ToLower(strings.TrimSpace(action))] = policy
	}
	cfg.Actions = actions

	return &Manager{
		ledger:        deps.Ledger,
		subscriptions: deps.Subscriptions,
		prices:        deps.Prices,
		payments:      deps.Payments,
		notifier:      deps.Notifier,
		cfg:           cfg,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
		sessions:      make(map[string]*Session),
	}
}

// Get returns the caller's session, creating and loading it on first use.
func (m *Manager) Get(ctx context.Context, identity auth.Identity) (*Session, error) {
	if identity.UserID <= 0 || strings.TrimSpace(identity.SID) == "" {
		return nil, auth.ErrUnauthorized
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := m.sessions[identity.SID]
	if ok && s.UserID != identity.UserID {
		m.mu.Unlock()
		return nil, auth.ErrUnauthorized
	}
	if !ok {
		s = newSession(m, identity.SID, identity.UserID)
		m.sessions[identity.SID] = s
		m.metrics.SetSessions(len(m.sessions))
		m.logger.Debug("session opened", zap.Int64("user_id", identity.UserID), zap.String("sid", identity.SID))
	}
	m.mu.Unlock()

	s.touch(m.now())
	s.load(ctx)
	return s, nil
}

// End tears down the session for sid. It reports whether one existed.
func (m *Manager) End(sid string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	if ok {
		delete(m.sessions, sid)
		m.metrics.SetSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Debug("session ended", zap.Int64("user_id", s.UserID), zap.String("sid", sid))
	}
	return ok
}

// SweepIdle ends sessions not used within idle and returns how many it ended.
func (m *Manager) SweepIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for sid, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, sid)
		}
	}
	m.metrics.SetSessions(len(m.sessions))
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// InFlight reports counter backend calls that have not returned yet.
func (m *Manager) InFlight() int {
	if m.ledger == nil {
		return 0
	}
	return m.ledger.InFlight()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.metrics.SetSessions(0)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
