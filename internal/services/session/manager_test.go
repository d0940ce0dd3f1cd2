package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/ledger"
	"github.com/mbyo2/zambia-match-time/internal/services/notify"
	"github.com/mbyo2/zambia-match-time/internal/services/payments"
	"github.com/mbyo2/zambia-match-time/internal/services/rate"
	"github.com/mbyo2/zambia-match-time/internal/services/swipes"
)

type fakeBackend struct {
	mu           sync.Mutex
	tier         enums.Tier
	remaining    int
	subCalls     int
	subErr       error
	genericCalls []int
}

func (f *fakeBackend) setTier(tier enums.Tier, remaining int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tier = tier
	f.remaining = remaining
}

func (f *fakeBackend) GetSubscription(_ context.Context, userID int64) (*model.SubscriptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	if f.tier == enums.TierFree {
		return nil, nil
	}
	return &model.SubscriptionRecord{UserID: userID, Tier: f.tier, Status: model.SubscriptionStatusActive}, nil
}

func (f *fakeBackend) CheckDiscoveryRateLimit(context.Context, int64) (bool, error) {
	return true, nil
}

func (f *fakeBackend) CheckGenericRateLimit(_ context.Context, _ int64, _ string, maxAttempts, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genericCalls = append(f.genericCalls, maxAttempts)
	return true, nil
}

func (f *fakeBackend) CountRecentAuditedActions(context.Context, int64, string, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeBackend) GetDailySwipeRemaining(context.Context, int64) (*int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tier.IsPaid() {
		return nil, nil
	}
	v := f.remaining
	return &v, nil
}

func (f *fakeBackend) IncrementSwipeCount(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining > 0 {
		f.remaining--
	}
	return nil
}

func (f *fakeBackend) TryConsume(context.Context, int64, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tier.IsPaid() {
		return true, nil
	}
	if f.remaining <= 0 {
		return false, nil
	}
	f.remaining--
	return true, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recordingNotifier) Notify(_ context.Context, notice notify.Notice) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return true
}

func newTestManager(backend *fakeBackend, notifier *recordingNotifier) *Manager {
	return NewManager(Dependencies{
		Ledger:        ledger.New(backend, nil, nil),
		Subscriptions: backend,
		Prices:        payments.PriceBook{enums.TierPremium: "price_premium"},
		Notifier:      notifier,
	}, Config{
		Discovery: rate.DiscoveryPolicy(),
		Generic:   rate.GenericPolicy(""),
		Actions: map[string]rate.Policy{
			"Report": {MaxAttempts: 5, Window: time.Hour, OnError: rate.ErrorPolicyDeny},
		},
		Swipes: swipes.Config{AtomicConsume: true},
	}, nil, nil)
}

func TestGetLoadsSessionOnce(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierFree, remaining: 4}
	manager := newTestManager(backend, &recordingNotifier{})
	identity := auth.Identity{UserID: 11, SID: "sid-a"}

	first, err := manager.Get(context.Background(), identity)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := manager.Get(context.Background(), identity)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second {
		t.Fatalf("same sid must map to the same session")
	}
	if backend.subCalls != 1 {
		t.Fatalf("expected one subscription fetch, got %d", backend.subCalls)
	}
	if first.Swipes.Remaining() != 4 || first.Subscription.Tier() != enums.TierFree {
		t.Fatalf("unexpected loaded state: remaining=%d tier=%s", first.Swipes.Remaining(), first.Subscription.Tier())
	}
	if manager.Len() != 1 {
		t.Fatalf("unexpected session count: %d", manager.Len())
	}

	if _, err := manager.Get(context.Background(), auth.Identity{UserID: 12, SID: "sid-a"}); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("sid reuse by another user must be rejected, got %v", err)
	}
	if _, err := manager.Get(context.Background(), auth.Identity{UserID: 11}); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("missing sid must be rejected, got %v", err)
	}
}

func TestTierChangeReloadsSwipes(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierPremium}
	manager := newTestManager(backend, &recordingNotifier{})

	s, err := manager.Get(context.Background(), auth.Identity{UserID: 11, SID: "sid-a"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Swipes.Displayed() != 999 {
		t.Fatalf("premium should display unlimited swipes, got %d", s.Swipes.Displayed())
	}

	backend.setTier(enums.TierFree, 2)
	if err := s.Subscription.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if s.Swipes.Remaining() != 2 || s.Swipes.Displayed() != 2 {
		t.Fatalf("downgrade should reload swipes, got remaining=%d", s.Swipes.Remaining())
	}
}

func TestRefreshWithUnchangedTierReconcilesSwipeGate(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierFree, remaining: 0}
	manager := newTestManager(backend, &recordingNotifier{})

	s, err := manager.Get(context.Background(), auth.Identity{UserID: 11, SID: "sid-a"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Swipes.CanSwipe() {
		t.Fatalf("exhausted free allowance must block")
	}

	backend.setTier(enums.TierFree, 20)
	if err := s.Subscription.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := s.Subscription.State().RemainingSwipes; got != 20 {
		t.Fatalf("unexpected fetched allowance: %d", got)
	}
	if s.Swipes.Remaining() != 20 || !s.Swipes.CanSwipe() {
		t.Fatalf("refetch must reach the swipe gate, remaining=%d", s.Swipes.Remaining())
	}
	if !s.Swipes.ConsumeSwipe(context.Background()) {
		t.Fatalf("consume after refetch should succeed")
	}
	if s.Swipes.Remaining() != 19 {
		t.Fatalf("expected 19 after one swipe, got %d", s.Swipes.Remaining())
	}
}

func TestInitialLoadSurvivesCancelledRequest(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierFree, remaining: 4}
	manager := newTestManager(backend, &recordingNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := manager.Get(ctx, auth.Identity{UserID: 11, SID: "sid-a"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Swipes.Remaining() != 4 || s.Subscription.State().Loading {
		t.Fatalf("initial load must not depend on the request, got remaining=%d state=%+v", s.Swipes.Remaining(), s.Subscription.State())
	}
}

func TestInitialLoadRetriesAfterFailure(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierPremium, subErr: errors.New("backend down")}
	manager := newTestManager(backend, &recordingNotifier{})
	identity := auth.Identity{UserID: 11, SID: "sid-a"}

	s, err := manager.Get(context.Background(), identity)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Subscription.Tier() != enums.TierFree {
		t.Fatalf("failed fetch must leave the free default, got %s", s.Subscription.Tier())
	}

	backend.mu.Lock()
	backend.subErr = nil
	backend.mu.Unlock()

	if _, err := manager.Get(context.Background(), identity); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if s.Subscription.Tier() != enums.TierPremium {
		t.Fatalf("next request must retry the load, got %s", s.Subscription.Tier())
	}
	if _, err := manager.Get(context.Background(), identity); err != nil {
		t.Fatalf("third get: %v", err)
	}
	if backend.subCalls != 2 {
		t.Fatalf("a successful load must not repeat, got %d fetches", backend.subCalls)
	}
}

func TestCheckQuotaQueriesWithoutConsuming(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierFree, remaining: 3}
	manager := newTestManager(backend, &recordingNotifier{})
	s, _ := manager.Get(context.Background(), auth.Identity{UserID: 11, SID: "sid-a"})

	result, err := s.CheckQuota(context.Background(), " Swipe ")
	if err != nil {
		t.Fatalf("check quota: %v", err)
	}
	if !result.Allowed || result.RemainingAttempts == nil || *result.RemainingAttempts != 3 {
		t.Fatalf("unexpected swipe quota: %+v", result)
	}
	if backend.remaining != 3 {
		t.Fatalf("check must not consume, remaining=%d", backend.remaining)
	}

	result, err = s.CheckQuota(context.Background(), "message")
	if err != nil || !result.Allowed || result.RemainingAttempts != nil {
		t.Fatalf("uncounted action should be allowed without a count: %+v %v", result, err)
	}
	if _, err := s.CheckQuota(context.Background(), ""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if manager.InFlight() != 0 {
		t.Fatalf("no remote call should be in flight, got %d", manager.InFlight())
	}

	manager.End("sid-a")
	if _, err := s.CheckQuota(context.Background(), "swipe"); !errors.Is(err, ErrClosed) {
		t.Fatalf("ended session must refuse checks, got %v", err)
	}
}

func TestLimiterSelection(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierFree, remaining: 1}
	manager := newTestManager(backend, &recordingNotifier{})
	s, _ := manager.Get(context.Background(), auth.Identity{UserID: 11, SID: "sid-a"})

	discovery, err := s.Limiter(enums.ActionDiscoverySearch)
	if err != nil || discovery != s.Discovery {
		t.Fatalf("discovery action must use the discovery limiter: %v", err)
	}

	report, err := s.Limiter(" REPORT ")
	if err != nil {
		t.Fatalf("report limiter: %v", err)
	}
	if p := report.Policy(); p.MaxAttempts != 5 || p.OnError != rate.ErrorPolicyDeny || p.Action != "report" {
		t.Fatalf("unexpected report policy: %+v", p)
	}
	again, _ := s.Limiter("report")
	if again != report {
		t.Fatalf("limiters must be reused per action")
	}

	message, _ := s.Limiter("message")
	if p := message.Policy(); p.MaxAttempts != 10 || p.Window != time.Hour {
		t.Fatalf("unconfigured action should use the generic policy, got %+v", p)
	}

	ctx := auth.WithIdentity(context.Background(), auth.Identity{UserID: 11, SID: "sid-a"})
	if !report.Check(ctx, "") {
		t.Fatalf("expected report check to pass")
	}
	if len(backend.genericCalls) != 1 || backend.genericCalls[0] != 5 {
		t.Fatalf("expected one generic call with max 5, got %v", backend.genericCalls)
	}

	if _, err := s.Limiter(""); !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestRequireTierNotifiesOnDenial(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierBasic}
	notifier := &recordingNotifier{}
	manager := newTestManager(backend, notifier)
	s, _ := manager.Get(context.Background(), auth.Identity{UserID: 11, SID: "sid-a"})

	if d := s.RequireTier(context.Background(), enums.TierBasic); !d.Allowed {
		t.Fatalf("basic should unlock basic")
	}
	d := s.RequireTier(context.Background(), enums.TierPremium)
	if d.Allowed || d.PriceRef != "price_premium" {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if len(notifier.notices) != 1 || notifier.notices[0].Kind != notify.KindUpgradeRequired {
		t.Fatalf("expected one upgrade notice, got %+v", notifier.notices)
	}
}

func TestEndAndSweepTearDownSessions(t *testing.T) {
	backend := &fakeBackend{tier: enums.TierFree, remaining: 3}
	manager := newTestManager(backend, &recordingNotifier{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	a, _ := manager.Get(context.Background(), auth.Identity{UserID: 1, SID: "a"})
	if !manager.End("a") {
		t.Fatalf("expected session a to end")
	}
	if manager.End("a") {
		t.Fatalf("ending twice must report false")
	}
	if err := a.Swipes.Consume(context.Background()); !errors.Is(err, swipes.ErrClosed) {
		t.Fatalf("ended session must refuse swipes, got %v", err)
	}
	if _, err := a.Limiter("message"); !errors.Is(err, ErrClosed) {
		t.Fatalf("ended session must refuse new limiters, got %v", err)
	}

	_, _ = manager.Get(context.Background(), auth.Identity{UserID: 2, SID: "b"})
	now = now.Add(20 * time.Minute)
	_, _ = manager.Get(context.Background(), auth.Identity{UserID: 3, SID: "c"})
	now = now.Add(15 * time.Minute)

	if n := manager.SweepIdle(30 * time.Minute); n != 1 {
		t.Fatalf("expected one idle session swept, got %d", n)
	}
	if manager.Len() != 1 {
		t.Fatalf("expected session c to remain, got %d sessions", manager.Len())
	}

	manager.Close()
	if _, err := manager.Get(context.Background(), auth.Identity{UserID: 3, SID: "c"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}
