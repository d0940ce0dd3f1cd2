package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
)

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Record(ctx context.Context, entry model.AuditEntry) error {
	if entry.UserID <= 0 || strings.TrimSpace(entry.ActionType) == "" {
		return fmt.Errorf("invalid audit entry payload")
	}
	if r.pool == nil {
		return ErrPoolUnavailable
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO action_audit_log (user_id, action_type, allowed, created_at)
VALUES ($1, $2, $3, $4)
`, entry.UserID, entry.ActionType, entry.Allowed, occurredAt.UTC()); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// CountSince counts allowed actions of the given type at or after since.
func (r *AuditRepo) CountSince(ctx context.Context, userID int64, actionType string, since time.Time) (int, error) {
	if userID <= 0 || strings.TrimSpace(actionType) == "" {
		return 0, fmt.Errorf("invalid audit count payload")
	}
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	var count int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM action_audit_log
WHERE user_id = $1
  AND action_type = $2
  AND allowed
  AND created_at >= $3
`, userID, actionType, since.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audited actions: %w", err)
	}

	return count, nil
}

func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.pool == nil {
		return 0, ErrPoolUnavailable
	}

	tag, err := r.pool.Exec(ctx, `
DELETE FROM action_audit_log
WHERE created_at < $1
`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale audit entries: %w", err)
	}

	return tag.RowsAffected(), nil
}
