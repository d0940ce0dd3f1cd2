package access

import (
	"context"
	"errors"
	"testing"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/services/payments"
)

type fixedTier enums.Tier

func (f fixedTier) Tier() enums.Tier { return enums.Tier(f) }

type stubPayments struct {
	priceRefs []string
	portals   int
	err       error
}

func (s *stubPayments) CreateCheckoutSession(_ context.Context, _ int64, priceRef string) (string, error) {
	s.priceRefs = append(s.priceRefs, priceRef)
	return "https://pay.example/" + priceRef, s.err
}

func (s *stubPayments) CreatePortalSession(context.Context, int64) (string, error) {
	s.portals++
	return "https://pay.example/portal", s.err
}

var testPrices = payments.PriceBook{
	enums.TierBasic:   "price_basic",
	enums.TierPremium: "price_premium",
}

func TestCheckMatrixAgreesWithTierOrder(t *testing.T) {
	for _, current := range enums.Tiers() {
		gate := NewGate(1, fixedTier(current), testPrices, nil, nil)
		for _, required := range enums.Tiers() {
			decision := gate.Check(required)
			want := current >= required
			if decision.Allowed != want {
				t.Fatalf("Check(%s) on %s = %v, want %v", required, current, decision.Allowed, want)
			}
			if decision.Allowed && decision.PriceRef != "" {
				t.Fatalf("allowed decision must not carry a price ref")
			}
		}
	}
}

func TestCheckDeniedCarriesPriceRef(t *testing.T) {
	gate := NewGate(1, fixedTier(enums.TierFree), testPrices, nil, nil)

	decision := gate.Check(enums.TierPremium)
	if decision.Allowed || decision.PriceRef != "price_premium" || decision.Current != enums.TierFree {
		t.Fatalf("unexpected decision: %+v", decision)
	}
}

func TestUpgradeDelegatesToCheckout(t *testing.T) {
	pay := &stubPayments{}
	gate := NewGate(1, fixedTier(enums.TierFree), testPrices, pay, nil)

	url, err := gate.Upgrade(context.Background(), enums.TierBasic)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if url != "https://pay.example/price_basic" || len(pay.priceRefs) != 1 {
		t.Fatalf("unexpected checkout: %s %v", url, pay.priceRefs)
	}

	if _, err := gate.Upgrade(context.Background(), enums.TierFree); !errors.Is(err, ErrAlreadyEntitled) {
		t.Fatalf("expected ErrAlreadyEntitled, got %v", err)
	}
	if _, err := gate.Upgrade(context.Background(), enums.TierElite); !errors.Is(err, payments.ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
	if len(pay.priceRefs) != 1 {
		t.Fatalf("refused upgrades must not reach the collaborator")
	}
}

func TestManageBillingAndMissingCollaborator(t *testing.T) {
	pay := &stubPayments{}
	gate := NewGate(1, fixedTier(enums.TierPremium), testPrices, pay, nil)
	if url, err := gate.ManageBilling(context.Background()); err != nil || url == "" {
		t.Fatalf("manage billing: url=%q err=%v", url, err)
	}

	bare := NewGate(1, fixedTier(enums.TierFree), testPrices, nil, nil)
	if _, err := bare.Upgrade(context.Background(), enums.TierBasic); !errors.Is(err, payments.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := bare.ManageBilling(context.Background()); !errors.Is(err, payments.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
