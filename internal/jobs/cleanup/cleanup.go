// Package cleanup prunes old audit rows and idle quota sessions.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type SessionSweeper interface {
	SweepIdle(idle time.Duration) int
}

type Config struct {
	Interval       time.Duration
	AuditRetention time.Duration
	SessionIdleTTL time.Duration
}

type Job struct {
	audit    AuditPruner
	sessions SessionSweeper
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

func New(audit AuditPruner, sessions SessionSweeper, cfg Config, logger *zap.Logger) *Job {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.AuditRetention <= 0 {
		cfg.AuditRetention = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		audit:    audit,
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// Run performs one pass. The audit trail must outlive every rate window,
// otherwise remaining counts computed from it would be too generous.
func (j *Job) Run(ctx context.Context) error {
	if j.sessions != nil && j.cfg.SessionIdleTTL > 0 {
		if n := j.sessions.SweepIdle(j.cfg.SessionIdleTTL); n > 0 {
			j.logger.Info("cleanup idle sessions completed", zap.Int("ended", n))
		}
	}

	if j.audit == nil {
		return nil
	}

	cutoff := j.now().Add(-j.cfg.AuditRetention)
	rows, err := j.audit.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup audit log: %w", err)
	}
	if rows > 0 {
		j.logger.Info("cleanup audit log completed", zap.Int64("deleted", rows), zap.Time("cutoff", cutoff))
	}
	return nil
}

// Loop runs the job every interval until ctx is done.
func (j *Job) Loop(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("cleanup run failed", zap.Error(err))
			}
		}
	}
}
