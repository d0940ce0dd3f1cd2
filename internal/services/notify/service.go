// Package notify delivers user-facing notices (rate limited, quota exceeded,
// upgrade required) to a set of sinks from a single background worker.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultQueueSize = 256
	deliverTimeout   = 5 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("notify service already started")
	ErrClosed         = errors.New("notify service closed")
)

type Kind string

const (
	KindRateLimited     Kind = "rate_limited"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindUpgradeRequired Kind = "upgrade_required"
	KindServiceDegraded Kind = "service_degraded"
)

type Notice struct {
	UserID       int64
	Kind         Kind
	Message      string
	RequiredTier string
	RetryAfter   time.Duration
	CreatedAt    time.Time
}

type Sink interface {
	Name() string
	Deliver(ctx context.Context, notice Notice) error
}

type Config struct {
	QueueSize int
}

type Service struct {
	sinks  []Sink
	queue  chan Notice
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	started bool
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
}

func NewService(cfg Config, logger *zap.Logger, sinks ...Sink) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		sinks:  sinks,
		queue:  make(chan Notice, cfg.QueueSize),
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Start launches the delivery worker. Notices queued before Start are delivered once it runs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	go s.run(context.WithoutCancel(ctx))
	return nil
}

// Notify enqueues without blocking. It reports false when the notice was dropped.
func (s *Service) Notify(_ context.Context, notice Notice) bool {
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = s.now().UTC()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return false
	}

	select {
	case s.queue <- notice:
		return true
	default:
		s.dropped.Add(1)
		s.logger.Warn("notice queue full, dropping notice",
			zap.Int64("user_id", notice.UserID),
			zap.String("kind", string(notice.Kind)),
		)
		return false
	}
}

func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops intake, drains queued notices and waits for the worker.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	close(s.queue)
	s.mu.Unlock()

	if started {
		<-s.done
	}
	return nil
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	for notice := range s.queue {
		s.deliver(ctx, notice)
	}
}

func (s *Service) deliver(ctx context.Context, notice Notice) {
	for _, sink := range s.sinks {
		deliverCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err := sink.Deliver(deliverCtx, notice)
		cancel()
		if err != nil {
			s.logger.Warn("deliver notice failed",
				zap.Error(err),
				zap.String("sink", sink.Name()),
				zap.Int64("user_id", notice.UserID),
				zap.String("kind", string(notice.Kind)),
			)
		}
	}
}
