// Package subscription keeps the per-session view of the caller's tier and
// daily swipe allowance.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
)

var ErrClosed = errors.New("subscription resolver closed")

type Source interface {
	GetSubscription(ctx context.Context, userID int64) (*model.SubscriptionRecord, error)
}

type RemainingSource interface {
	Remaining(ctx context.Context, userID int64) (*int, error)
}

// Listener runs after every successful fetch with the replaced and the new
// state, so a refetch reaches subscribers even when the tier is unchanged.
type Listener func(ctx context.Context, previous, current model.SubscriptionState)

type Resolver struct {
	userID    int64
	source    Source
	remaining RemainingSource
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	state     model.SubscriptionState
	gen       uint64
	closed    bool
	listeners map[int]Listener
	nextID    int
}

func NewResolver(userID int64, source Source, remaining RemainingSource, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		userID:    userID,
		source:    source,
		remaining: remaining,
		logger:    logger,
		now:       time.Now,
		state: model.SubscriptionState{
			Tier:    enums.TierFree,
			Status:  model.SubscriptionStatusActive,
			Loading: true,
		},
		listeners: make(map[int]Listener),
	}
}

// Fetch loads the subscription row and the swipe allowance in parallel and
// replaces the state in one step. On failure the last known state is kept.
func (r *Resolver) Fetch(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.gen++
	gen := r.gen
	r.state.Loading = true
	r.mu.Unlock()

	var (
		record    *model.SubscriptionRecord
		remaining *int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = r.source.GetSubscription(gctx, r.userID)
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remaining, err = r.remaining.Remaining(gctx, r.userID)
		if err != nil {
			return fmt.Errorf("get daily swipe remaining: %w", err)
		}
		return nil
	})
	err := g.Wait()

	r.mu.Lock()
	if r.closed || gen != r.gen {
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		r.state.Loading = false
		r.mu.Unlock()
		r.logger.Warn("subscription fetch failed, keeping last known state",
			zap.Error(err),
			zap.Int64("user_id", r.userID),
		)
		return err
	}

	next := model.SubscriptionState{
		Tier:      enums.TierFree,
		Status:    model.SubscriptionStatusActive,
		FetchedAt: r.now().UTC(),
	}
	if record != nil {
		next.Tier = record.Tier
		if status := strings.TrimSpace(record.Status); status != "" {
			next.Status = status
		}
		next.PeriodEnd = record.PeriodEnd
	}
	if remaining != nil && *remaining > 0 {
		next.RemainingSwipes = *remaining
	}

	previous := r.state
	r.state = next
	listeners := make([]Listener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, previous, next)
	}
	return nil
}

// Refresh refetches after an action that may have changed the tier, such as checkout.
func (r *Resolver) Refresh(ctx context.Context) error {
	return r.Fetch(ctx)
}

func (r *Resolver) State() model.SubscriptionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Resolver) Tier() enums.Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Tier
}

func (r *Resolver) HasAccess(required enums.Tier) bool {
	return rules.HasAccess(r.Tier(), required)
}

// NoteSwipeConsumed applies the optimistic decrement after a confirmed swipe.
// The state stays stale until the next fetch.
func (r *Resolver) NoteSwipeConsumed() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.state.RemainingSwipes > 0 {
		r.state.RemainingSwipes--
	}
	r.state.Stale = true
}

// Subscribe registers fn for fetched states and returns its removal func.
func (r *Resolver) Subscribe(fn Listener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || fn == nil {
		return func() {}
	}
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.listeners = make(map[int]Listener)
}
