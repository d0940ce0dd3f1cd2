package apiapp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/transport/http/handlers"
)

type Dependencies struct {
	Validator  TokenValidator
	Revoker    handlers.SessionRevoker
	Sessions   SessionStore
	Rewards    handlers.RewardService
	Inbox      handlers.InboxReader
	RPCBackend handlers.RPCBackend
	ServiceKey string
	Metrics    http.Handler
	Logger     *zap.Logger
	Location   *time.Location
}

// SessionStore is what the v1 handlers need from the session manager.
type SessionStore interface {
	handlers.SessionProvider
	handlers.SessionEnder
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	quotaHandler := handlers.NewQuotaHandler(deps.Sessions, deps.Location)
	billingHandler := handlers.NewBillingHandler(deps.Sessions)
	rewardsHandler := handlers.NewRewardsHandler(deps.Rewards)
	noticesHandler := handlers.NewNoticesHandler(deps.Inbox)
	authHandler := handlers.NewAuthHandler(deps.Revoker, deps.Sessions)
	authMW := AuthMiddleware(deps.Validator, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	if deps.RPCBackend != nil {
		rpcHandler := handlers.NewRPCHandler(deps.RPCBackend, deps.Logger)
		r.With(ServiceKeyMiddleware(deps.ServiceKey)).Post("/rpc/{op}", rpcHandler.Handle)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMW)
		r.Get("/subscription", quotaHandler.Subscription)
		r.Post("/subscription/refresh", quotaHandler.RefreshSubscription)
		r.Get("/swipes/quota", quotaHandler.SwipeQuota)
		r.Post("/swipes/consume", quotaHandler.ConsumeSwipe)
		r.Get("/quota/{action}", quotaHandler.QuotaCheck)
		r.Post("/discovery/check", quotaHandler.DiscoveryCheck)
		r.Post("/actions/{action}/check", quotaHandler.ActionCheck)
		r.Get("/access/{tier}", quotaHandler.Access)
		r.Post("/billing/checkout", billingHandler.Checkout)
		r.Post("/billing/portal", billingHandler.Portal)
		r.Get("/rewards/today", rewardsHandler.Today)
		r.Post("/rewards/today/claim", rewardsHandler.Claim)
		r.Get("/notices", noticesHandler.List)
		r.Post("/auth/logout", authHandler.Logout)
	})
}
