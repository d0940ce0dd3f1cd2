package rate

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
	authsvc "github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/notify"
)

const metricsComponent = "rate"

// ErrorPolicy decides the outcome of a check whose remote call failed.
type ErrorPolicy string

const (
	ErrorPolicyAllow ErrorPolicy = "allow"
	ErrorPolicyDeny  ErrorPolicy = "deny"
)

func ParseErrorPolicy(raw string) ErrorPolicy {
	if strings.EqualFold(strings.TrimSpace(raw), string(ErrorPolicyDeny)) {
		return ErrorPolicyDeny
	}
	return ErrorPolicyAllow
}

type Kind string

const (
	KindDiscovery Kind = "discovery"
	KindGeneric   Kind = "generic"
)

type Policy struct {
	Action      string
	MaxAttempts int
	Window      time.Duration
	OnError     ErrorPolicy
	Kind        Kind
}

func DiscoveryPolicy() Policy {
	return Policy{
		Action:      enums.ActionDiscoverySearch,
		MaxAttempts: rules.DiscoveryMaxAttempts,
		Window:      rules.DiscoveryWindow,
		OnError:     ErrorPolicyAllow,
		Kind:        KindDiscovery,
	}
}

func GenericPolicy(action string) Policy {
	return Policy{
		Action:      action,
		MaxAttempts: rules.GenericMaxAttempts,
		Window:      rules.GenericWindow,
		OnError:     ErrorPolicyAllow,
		Kind:        KindGeneric,
	}
}

type Ledger interface {
	CheckDiscovery(ctx context.Context, userID int64) (bool, error)
	CheckGeneric(ctx context.Context, userID int64, action string, maxAttempts int, window time.Duration) (bool, error)
	CountRecent(ctx context.Context, userID int64, action string, since time.Time) (int, error)
}

type Notifier interface {
	Notify(ctx context.Context, notice notify.Notice) bool
}

// Limiter guards one action for one session. Its state reflects the last
// completed check only; the server owns the counters.
type Limiter struct {
	policy   Policy
	ledger   Ledger
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	state  model.RateLimitState
	closed bool
}

func NewLimiter(policy Policy, ledger Ledger, notifier Notifier, m *metrics.Metrics, logger *zap.Logger) *Limiter {
	if policy.Kind == "" {
		policy.Kind = KindGeneric
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = rules.GenericMaxAttempts
	}
	if policy.Window <= 0 {
		policy.Window = rules.GenericWindow
	}
	if policy.OnError == "" {
		policy.OnError = ErrorPolicyAllow
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		policy:   policy,
		ledger:   ledger,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
		state:    model.RateLimitState{RemainingQueries: policy.MaxAttempts},
	}
}

func (l *Limiter) Policy() Policy {
	return l.policy
}

// Check asks the server whether the caller in ctx may perform actionType now.
// An empty actionType uses the policy action.
func (l *Limiter) Check(ctx context.Context, actionType string) bool {
	identity, ok := authsvc.IdentityFromContext(ctx)
	if !ok || identity.UserID <= 0 {
		l.metrics.Decision(metricsComponent, metrics.OutcomeDenied)
		return false
	}
	if l.isClosed() {
		return false
	}

	action := strings.TrimSpace(actionType)
	if action == "" {
		action = l.policy.Action
	}

	allowed, err := l.remoteCheck(ctx, identity.UserID, action)
	if err != nil {
		return l.onRemoteError(ctx, identity.UserID, action, err)
	}

	if !allowed {
		l.deny(ctx, identity.UserID, action)
		return false
	}

	count, countErr := l.ledger.CountRecent(ctx, identity.UserID, action, l.now().Add(-l.policy.Window))
	if countErr != nil {
		l.logger.Warn("count recent actions failed, keeping last remaining",
			zap.Error(countErr),
			zap.Int64("user_id", identity.UserID),
			zap.String("action_type", action),
		)
	}

	l.mu.Lock()
	if !l.closed {
		l.state.IsLimited = false
		l.state.ResetTime = nil
		if countErr == nil {
			l.state.RemainingQueries = rules.RemainingFromUsed(l.policy.MaxAttempts, count)
		}
	}
	l.mu.Unlock()

	l.metrics.Decision(metricsComponent, metrics.OutcomeAllowed)
	return true
}

func (l *Limiter) remoteCheck(ctx context.Context, userID int64, action string) (bool, error) {
	if l.policy.Kind == KindDiscovery {
		return l.ledger.CheckDiscovery(ctx, userID)
	}
	return l.ledger.CheckGeneric(ctx, userID, action, l.policy.MaxAttempts, l.policy.Window)
}

func (l *Limiter) onRemoteError(ctx context.Context, userID int64, action string, err error) bool {
	if l.policy.OnError == ErrorPolicyDeny {
		l.logger.Warn("rate limit check failed, denying",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("action_type", action),
		)
		l.metrics.Decision(metricsComponent, metrics.OutcomeFailClosed)
		l.notice(ctx, notify.Notice{
			UserID:  userID,
			Kind:    notify.KindServiceDegraded,
			Message: "This action is temporarily unavailable. Please try again shortly.",
		})
		return false
	}

	l.logger.Warn("rate limit check failed, allowing",
		zap.Error(err),
		zap.Int64("user_id", userID),
		zap.String("action_type", action),
	)
	l.metrics.Decision(metricsComponent, metrics.OutcomeFailOpen)
	return true
}

func (l *Limiter) deny(ctx context.Context, userID int64, action string) {
	resetAt := l.now().Add(l.policy.Window)

	l.mu.Lock()
	closed := l.closed
	if !closed {
		l.state = model.RateLimitState{
			IsLimited:        true,
			RemainingQueries: 0,
			ResetTime:        &resetAt,
		}
	}
	l.mu.Unlock()

	l.metrics.Decision(metricsComponent, metrics.OutcomeDenied)
	if closed {
		return
	}

	l.notice(ctx, notify.Notice{
		UserID:     userID,
		Kind:       notify.KindRateLimited,
		Message:    "You are doing that too often. Please wait before trying again.",
		RetryAfter: l.policy.Window,
	})
	l.logger.Debug("rate limit reached",
		zap.Int64("user_id", userID),
		zap.String("action_type", action),
		zap.Time("reset_at", resetAt),
	)
}

func (l *Limiter) notice(ctx context.Context, notice notify.Notice) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(ctx, notice)
}

func (l *Limiter) State() model.RateLimitState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.state
	if state.ResetTime != nil {
		reset := *state.ResetTime
		state.ResetTime = &reset
	}
	return state
}

// RetryAfterSeconds is the whole number of seconds until the limit resets, rounded up.
func (l *Limiter) RetryAfterSeconds() int64 {
	state := l.State()
	if !state.IsLimited || state.ResetTime == nil {
		return 0
	}
	return ceilSeconds(state.ResetTime.Sub(l.now()))
}

// Close makes every later or in-flight result a no-op.
func (l *Limiter) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

func (l *Limiter) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}
