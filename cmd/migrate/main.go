package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mbyo2/zambia-match-time/internal/config"
	"github.com/mbyo2/zambia-match-time/internal/infra/logger"
	"github.com/mbyo2/zambia-match-time/internal/migrations"
)

func main() {
	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := "up"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		if err := migrations.Up(ctx, cfg.Postgres.DSN); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		log.Info("migrations applied")
	case "status":
		if err := migrations.Status(ctx, cfg.Postgres.DSN); err != nil {
			log.Fatal("migration status failed", zap.Error(err))
		}
	default:
		log.Fatal("unknown migrate command", zap.String("command", cmd))
	}
}
