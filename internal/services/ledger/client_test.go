package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
)

type stubBackend struct {
	remaining     *int
	remainingErr  error
	increments    int
	tryConsumeOK  bool
	windowMinutes int
	block         chan struct{}
}

func (s *stubBackend) CheckDiscoveryRateLimit(context.Context, int64) (bool, error) {
	if s.block != nil {
		<-s.block
	}
	return true, nil
}

func (s *stubBackend) CheckGenericRateLimit(_ context.Context, _ int64, _ string, _ int, windowMinutes int) (bool, error) {
	s.windowMinutes = windowMinutes
	return true, nil
}

func (s *stubBackend) CountRecentAuditedActions(context.Context, int64, string, time.Time) (int, error) {
	return 0, nil
}

func (s *stubBackend) GetDailySwipeRemaining(context.Context, int64) (*int, error) {
	return s.remaining, s.remainingErr
}

func (s *stubBackend) IncrementSwipeCount(context.Context, int64) error {
	s.increments++
	return nil
}

func (s *stubBackend) TryConsume(context.Context, int64, string) (bool, error) {
	return s.tryConsumeOK, nil
}

func TestCheckReportsRemainingForSwipes(t *testing.T) {
	left := 0
	client := New(&stubBackend{remaining: &left}, nil, nil)

	result, err := client.Check(context.Background(), 1, "SWIPE")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Allowed || !result.Blocked || result.RemainingAttempts == nil || *result.RemainingAttempts != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	left = 4
	result, _ = client.Check(context.Background(), 1, enums.ActionSwipe)
	if !result.Allowed || result.Blocked || *result.RemainingAttempts != 4 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckUncappedAndUncountedActions(t *testing.T) {
	backend := &stubBackend{}
	client := New(backend, nil, nil)

	result, err := client.Check(context.Background(), 1, enums.ActionSwipe)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Allowed || result.RemainingAttempts != nil {
		t.Fatalf("nil remaining should mean uncapped, got %+v", result)
	}

	result, err = client.Check(context.Background(), 1, enums.ActionMessage)
	if err != nil || !result.Allowed {
		t.Fatalf("uncounted action should be allowed, got %+v err=%v", result, err)
	}

	if err := client.Increment(context.Background(), 1, enums.ActionMessage); !errors.Is(err, ErrUnsupportedAction) {
		t.Fatalf("expected ErrUnsupportedAction, got %v", err)
	}
	if err := client.Increment(context.Background(), 1, enums.ActionSwipe); err != nil {
		t.Fatalf("increment swipe: %v", err)
	}
	if backend.increments != 1 {
		t.Fatalf("expected one increment, got %d", backend.increments)
	}
}

func TestCheckPropagatesRemoteErrorAndCountsIt(t *testing.T) {
	reg := prometheus.NewRegistry()
	client := New(&stubBackend{remainingErr: errors.New("boom")}, metrics.New(reg), nil)

	if _, err := client.Check(context.Background(), 1, enums.ActionSwipe); err == nil {
		t.Fatalf("expected remote error")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "quota_remote_call_errors_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected remote error counter to be recorded")
	}
}

func TestCheckGenericRoundsWindowUpToMinutes(t *testing.T) {
	backend := &stubBackend{}
	client := New(backend, nil, nil)

	if _, err := client.CheckGeneric(context.Background(), 1, enums.ActionReport, 5, 90*time.Second); err != nil {
		t.Fatalf("check generic: %v", err)
	}
	if backend.windowMinutes != 2 {
		t.Fatalf("expected 2 minute window, got %d", backend.windowMinutes)
	}

	_, _ = client.CheckGeneric(context.Background(), 1, enums.ActionReport, 5, 0)
	if backend.windowMinutes != 1 {
		t.Fatalf("expected minimum 1 minute window, got %d", backend.windowMinutes)
	}
}

func TestInFlightTracksPendingCalls(t *testing.T) {
	backend := &stubBackend{block: make(chan struct{})}
	client := New(backend, nil, nil)

	done := make(chan struct{})
	go func() {
		_, _ = client.CheckDiscovery(context.Background(), 1)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for client.InFlight() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected one in-flight call")
		}
		time.Sleep(time.Millisecond)
	}

	close(backend.block)
	<-done
	if client.InFlight() != 0 {
		t.Fatalf("expected no in-flight calls, got %d", client.InFlight())
	}
}
