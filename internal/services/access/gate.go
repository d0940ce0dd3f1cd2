// Package access decides whether the caller's tier unlocks a feature and
// routes upgrades to the billing collaborator.
package access

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/domain/rules"
	"github.com/mbyo2/zambia-match-time/internal/services/payments"
)

var ErrAlreadyEntitled = errors.New("current tier already grants access")

type TierSource interface {
	Tier() enums.Tier
}

type Decision struct {
	Allowed  bool       `json:"allowed"`
	Current  enums.Tier `json:"current_tier"`
	Required enums.Tier `json:"required_tier"`
	PriceRef string     `json:"price_ref,omitempty"`
}

type Gate struct {
	userID   int64
	tiers    TierSource
	prices   payments.PriceBook
	payments payments.Client
	logger   *zap.Logger
}

func NewGate(userID int64, tiers TierSource, prices payments.PriceBook, client payments.Client, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		userID:   userID,
		tiers:    tiers,
		prices:   prices,
		payments: client,
		logger:   logger,
	}
}

// Check compares the cached tier with required. Denied decisions carry the
// price reference that unlocks required.
func (g *Gate) Check(required enums.Tier) Decision {
	current := g.tiers.Tier()
	decision := Decision{
		Allowed:  rules.HasAccess(current, required),
		Current:  current,
		Required: required,
	}
	if !decision.Allowed {
		decision.PriceRef, _ = g.prices.PriceRef(required)
	}
	return decision
}

// Upgrade opens a checkout session for required and returns its URL.
func (g *Gate) Upgrade(ctx context.Context, required enums.Tier) (string, error) {
	if g.payments == nil {
		return "", payments.ErrNotConfigured
	}

	decision := g.Check(required)
	if decision.Allowed {
		return "", ErrAlreadyEntitled
	}
	if decision.PriceRef == "" {
		return "", fmt.Errorf("%w: %s", payments.ErrNoPrice, required)
	}

	url, err := g.payments.CreateCheckoutSession(ctx, g.userID, decision.PriceRef)
	if err != nil {
		g.logger.Warn("create checkout session failed",
			zap.Error(err),
			zap.Int64("user_id", g.userID),
			zap.String("required_tier", required.String()),
		)
		return "", err
	}
	return url, nil
}

func (g *Gate) ManageBilling(ctx context.Context) (string, error) {
	if g.payments == nil {
		return "", payments.ErrNotConfigured
	}

	url, err := g.payments.CreatePortalSession(ctx, g.userID)
	if err != nil {
		g.logger.Warn("create portal session failed", zap.Error(err), zap.Int64("user_id", g.userID))
		return "", err
	}
	return url, nil
}
