package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/infra/remote"
)

type stubRPCBackend struct {
	remaining  *int
	consumed   int
	claimed    map[uuid.UUID]bool
	failDiscov bool
	lastSince  time.Time
	lastWindow int
}

func (s *stubRPCBackend) CheckDiscoveryRateLimit(context.Context, int64) (bool, error) {
	if s.failDiscov {
		return false, errors.New("redis down")
	}
	return true, nil
}

func (s *stubRPCBackend) CountRecentAuditedActions(_ context.Context, _ int64, _ string, since time.Time) (int, error) {
	s.lastSince = since
	return 4, nil
}

func (s *stubRPCBackend) CheckGenericRateLimit(_ context.Context, _ int64, _ string, _ int, windowMinutes int) (bool, error) {
	s.lastWindow = windowMinutes
	return false, nil
}

func (s *stubRPCBackend) GetSubscription(_ context.Context, userID int64) (*model.SubscriptionRecord, error) {
	if userID == 1 {
		return nil, nil
	}
	return &model.SubscriptionRecord{UserID: userID, Tier: enums.TierElite, Status: "active"}, nil
}

func (s *stubRPCBackend) GetDailySwipeRemaining(context.Context, int64) (*int, error) {
	return s.remaining, nil
}

func (s *stubRPCBackend) IncrementSwipeCount(context.Context, int64) error {
	s.consumed++
	return nil
}

func (s *stubRPCBackend) TryConsume(_ context.Context, _ int64, resource string) (bool, error) {
	if resource != enums.ResourceSwipe {
		return false, model.ErrUnsupportedResource
	}
	return true, nil
}

func (s *stubRPCBackend) GetOrCreateDailyReward(_ context.Context, userID int64, date string) (model.DailyReward, error) {
	return model.DailyReward{ID: uuid.MustParse("7f1c2a4e-3f53-4f0b-9a36-21f1d1f0c9aa"), UserID: userID, Date: date, Type: enums.RewardTypeBoost, Value: 1}, nil
}

func (s *stubRPCBackend) ClaimDailyReward(_ context.Context, rewardID uuid.UUID) (model.DailyReward, error) {
	if s.claimed[rewardID] {
		return model.DailyReward{}, model.ErrRewardAlreadyClaimed
	}
	if rewardID == uuid.Nil {
		return model.DailyReward{}, model.ErrRewardNotFound
	}
	s.claimed[rewardID] = true
	return model.DailyReward{ID: rewardID, Claimed: true}, nil
}

func newRPCServer(t *testing.T, backend RPCBackend) *remote.Client {
	t.Helper()

	r := chi.NewRouter()
	r.Post("/rpc/{op}", NewRPCHandler(backend, nil).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client, err := remote.New(remote.Config{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("new remote client: %v", err)
	}
	return client
}

func TestRPCRoundTripThroughRemoteClient(t *testing.T) {
	five := 5
	backend := &stubRPCBackend{remaining: &five, claimed: map[uuid.UUID]bool{}}
	client := newRPCServer(t, backend)
	ctx := context.Background()

	if ok, err := client.CheckDiscoveryRateLimit(ctx, 2); err != nil || !ok {
		t.Fatalf("discovery: ok=%v err=%v", ok, err)
	}
	if ok, err := client.CheckGenericRateLimit(ctx, 2, "report", 5, 60); err != nil || ok {
		t.Fatalf("generic: ok=%v err=%v", ok, err)
	}
	if backend.lastWindow != 60 {
		t.Fatalf("window minutes not forwarded: %d", backend.lastWindow)
	}

	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if n, err := client.CountRecentAuditedActions(ctx, 2, "report", since); err != nil || n != 4 {
		t.Fatalf("count: n=%d err=%v", n, err)
	}
	if !backend.lastSince.Equal(since) {
		t.Fatalf("since not forwarded: %s", backend.lastSince)
	}

	if sub, err := client.GetSubscription(ctx, 1); err != nil || sub != nil {
		t.Fatalf("missing subscription should decode as nil: %+v %v", sub, err)
	}
	if sub, err := client.GetSubscription(ctx, 2); err != nil || sub == nil || sub.Tier != enums.TierElite {
		t.Fatalf("unexpected subscription: %+v %v", sub, err)
	}

	if rem, err := client.GetDailySwipeRemaining(ctx, 2); err != nil || rem == nil || *rem != 5 {
		t.Fatalf("unexpected remaining: %v %v", rem, err)
	}
	backend.remaining = nil
	if rem, err := client.GetDailySwipeRemaining(ctx, 2); err != nil || rem != nil {
		t.Fatalf("null remaining should stay nil: %v %v", rem, err)
	}

	if err := client.IncrementSwipeCount(ctx, 2); err != nil || backend.consumed != 1 {
		t.Fatalf("increment: consumed=%d err=%v", backend.consumed, err)
	}
	if _, err := client.TryConsume(ctx, 2, "boost"); !errors.Is(err, model.ErrUnsupportedResource) {
		t.Fatalf("expected ErrUnsupportedResource, got %v", err)
	}

	reward, err := client.GetOrCreateDailyReward(ctx, 2, "2026-01-02")
	if err != nil || reward.Date != "2026-01-02" {
		t.Fatalf("reward: %+v %v", reward, err)
	}
	if _, err := client.ClaimDailyReward(ctx, reward.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := client.ClaimDailyReward(ctx, reward.ID); !errors.Is(err, model.ErrRewardAlreadyClaimed) {
		t.Fatalf("expected ErrRewardAlreadyClaimed, got %v", err)
	}
	if _, err := client.ClaimDailyReward(ctx, uuid.Nil); !errors.Is(err, model.ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}
}

func TestRPCBackendFailureIsTransient(t *testing.T) {
	client := newRPCServer(t, &stubRPCBackend{failDiscov: true, claimed: map[uuid.UUID]bool{}})

	_, err := client.CheckDiscoveryRateLimit(context.Background(), 2)
	if !remote.IsTransient(err) {
		t.Fatalf("backend failure should surface as transient, got %v", err)
	}
}

func TestRPCRejectsUnknownOpAndBadBody(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/rpc/{op}", NewRPCHandler(&stubRPCBackend{}, nil).Handle)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc/drop_tables", strings.NewReader(`{}`)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status for unknown op: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/rpc/"+remote.OpTryConsume, strings.NewReader(`{"user_id":"x"}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for malformed body: %d", rr.Code)
	}
}
