package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/backend"
	"github.com/mbyo2/zambia-match-time/internal/config"
	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/infra/metrics"
	"github.com/mbyo2/zambia-match-time/internal/infra/remote"
	"github.com/mbyo2/zambia-match-time/internal/infra/telegram"
	"github.com/mbyo2/zambia-match-time/internal/jobs/cleanup"
	"github.com/mbyo2/zambia-match-time/internal/migrations"
	pgrepo "github.com/mbyo2/zambia-match-time/internal/repo/postgres"
	redrepo "github.com/mbyo2/zambia-match-time/internal/repo/redis"
	authsvc "github.com/mbyo2/zambia-match-time/internal/services/auth"
	"github.com/mbyo2/zambia-match-time/internal/services/ledger"
	"github.com/mbyo2/zambia-match-time/internal/services/notify"
	"github.com/mbyo2/zambia-match-time/internal/services/payments"
	"github.com/mbyo2/zambia-match-time/internal/services/rate"
	"github.com/mbyo2/zambia-match-time/internal/services/rewards"
	"github.com/mbyo2/zambia-match-time/internal/services/session"
	"github.com/mbyo2/zambia-match-time/internal/services/swipes"
)

// ShutdownTimeout bounds how long cmd/api waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// engine is the counter backend as seen by the sessions: the local store or
// a remote quota engine reached over RPC.
type engine interface {
	ledger.Backend
	GetSubscription(ctx context.Context, userID int64) (*model.SubscriptionRecord, error)
	GetOrCreateDailyReward(ctx context.Context, userID int64, date string) (model.DailyReward, error)
	ClaimDailyReward(ctx context.Context, rewardID uuid.UUID) (model.DailyReward, error)
}

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	notifier   *notify.Service
	sessions   *session.Manager
	cleanup    *cleanup.Job
	httpRouter http.Handler
	stopJobs   context.CancelFunc
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	prices, err := payments.NewPriceBook(cfg.Payments.PriceRefs)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	inboxRepo := redrepo.NewInboxRepo(redisClient, cfg.Notify.InboxSize, cfg.Notify.InboxTTL)

	var (
		pool     *pgxpool.Pool
		store    *backend.Store
		auditLog *pgrepo.AuditRepo
		counters engine
	)
	switch cfg.Engine.Backend {
	case config.BackendRemote:
		client, err := remote.New(remote.Config{
			BaseURL:    cfg.Engine.RemoteURL,
			ServiceKey: cfg.Engine.ServiceKey,
			Timeout:    cfg.Engine.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create remote engine client: %w", err)
		}
		counters = client
	default:
		if cfg.Postgres.MigrateOnBoot {
			if err := migrations.Up(ctx, cfg.Postgres.DSN); err != nil {
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
			log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
		} else {
			pool = p
		}

		auditLog = pgrepo.NewAuditRepo(pool)
		store = backend.NewStore(backend.Dependencies{
			Subscriptions: pgrepo.NewSubscriptionRepo(pool),
			SwipeQuotas:   pgrepo.NewSwipeQuotaRepo(pool),
			Audit:         auditLog,
			Windows:       redrepo.NewRateRepo(redisClient),
			Rewards:       pgrepo.NewRewardRepo(pool),
		}, backend.Config{
			FreeSwipesPerDay:     cfg.Limits.FreeSwipesPerDay,
			DiscoveryMaxAttempts: cfg.Limits.Discovery.MaxAttempts,
			DiscoveryWindow:      cfg.Limits.Discovery.Window,
			Location:             cfg.Location(),
		}, log)
		counters = store
	}

	sinks := []notify.Sink{notify.NewLogSink(log), notify.NewInboxSink(inboxRepo)}
	if cfg.Telegram.Notify {
		if bot, err := telegram.NewBot(cfg.Telegram.BotToken); err != nil {
			log.Warn("telegram init failed, notices stay in the inbox", zap.Error(err))
		} else {
			sinks = append(sinks, notify.NewTelegramSink(bot))
		}
	}
	notifier := notify.NewService(notify.Config{QueueSize: cfg.Notify.QueueSize}, log, sinks...)
	if err := notifier.Start(ctx); err != nil {
		return nil, fmt.Errorf("start notifier: %w", err)
	}

	var checkout payments.Client
	if client, err := payments.NewHTTPClient(payments.HTTPConfig{
		BaseURL: cfg.Payments.BaseURL,
		APIKey:  cfg.Payments.APIKey,
		Timeout: cfg.Payments.Timeout,
	}); err != nil {
		log.Warn("payments collaborator not configured, billing endpoints disabled", zap.Error(err))
	} else {
		checkout = client
	}

	sessions := session.NewManager(session.Dependencies{
		Ledger:        ledger.New(counters, m, log),
		Subscriptions: counters,
		Prices:        prices,
		Payments:      checkout,
		Notifier:      notifier,
	}, sessionConfig(cfg), m, log)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
	validator := authsvc.NewValidator(jwtManager, redrepo.NewRevocationRepo(redisClient))

	var auditPruner cleanup.AuditPruner
	if auditLog != nil && pool != nil {
		auditPruner = auditLog
	}
	cleanupJob := cleanup.New(auditPruner, sessions, cleanup.Config{
		Interval:       cfg.Cleanup.Interval,
		AuditRetention: cfg.Cleanup.AuditRetention,
		SessionIdleTTL: cfg.Engine.SessionIdleTTL,
	}, log)

	deps := Dependencies{
		Validator:  validator,
		Revoker:    validator,
		Sessions:   sessions,
		Rewards:    rewards.NewService(counters, cfg.Location()),
		Inbox:      inboxRepo,
		ServiceKey: cfg.RPC.ServiceKey,
		Metrics:    m.Handler(),
		Logger:     log,
		Location:   cfg.Location(),
	}
	if store != nil {
		deps.RPCBackend = store
		if cfg.RPC.ServiceKey == "" {
			log.Warn("rpc service key is empty, /rpc is unauthenticated")
		}
	}
	RegisterRoutes(r, deps)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		notifier:   notifier,
		sessions:   sessions,
		cleanup:    cleanupJob,
		httpRouter: r,
	}, nil
}

func sessionConfig(cfg config.Config) session.Config {
	actions := make(map[string]rate.Policy, len(cfg.Limits.Actions))
	for action, policy := range cfg.Limits.Actions {
		actions[action] = limitPolicy(action, policy)
	}

	discovery := limitPolicy(rate.DiscoveryPolicy().Action, cfg.Limits.Discovery)
	discovery.Kind = rate.KindDiscovery

	return session.Config{
		Discovery: discovery,
		Generic:   limitPolicy("", cfg.Limits.Generic),
		Actions:   actions,
		Swipes:    swipes.Config{AtomicConsume: cfg.Swipes.AtomicConsume},
	}
}

func limitPolicy(action string, c config.LimitPolicyConfig) rate.Policy {
	return rate.Policy{
		Action:      action,
		MaxAttempts: c.MaxAttempts,
		Window:      c.Window,
		OnError:     rate.ParseErrorPolicy(c.OnError),
		Kind:        rate.KindGeneric,
	}
}

func (a *App) Run() error {
	jobCtx, cancel := context.WithCancel(context.Background())
	a.stopJobs = cancel
	go a.cleanup.Loop(jobCtx)

	a.logger.Info("api server started",
		zap.String("addr", a.cfg.HTTP.Addr),
		zap.String("engine_backend", a.cfg.Engine.Backend),
	)
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.stopJobs != nil {
		a.stopJobs()
	}
	if n := a.sessions.InFlight(); n > 0 {
		a.logger.Warn("closing sessions with counter calls in flight", zap.Int("in_flight", n))
	}
	a.sessions.Close()
	if err := a.notifier.Close(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
