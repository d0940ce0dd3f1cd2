package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const revokedSessionPrefix = "auth:revoked:"

// RevocationRepo remembers logged-out session ids until their tokens expire.
type RevocationRepo struct {
	client *goredis.Client
}

func NewRevocationRepo(client *goredis.Client) *RevocationRepo {
	return &RevocationRepo{client: client}
}

func (r *RevocationRepo) Revoke(ctx context.Context, sid string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	sid = strings.TrimSpace(sid)
	if sid == "" || ttl <= 0 {
		return fmt.Errorf("invalid revocation payload")
	}

	if err := r.client.Set(ctx, revokedSessionPrefix+sid, 1, ttl).Err(); err != nil {
		return fmt.Errorf("set revoked session: %w", err)
	}
	return nil
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, sid string) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}

	err := r.client.Get(ctx, revokedSessionPrefix+strings.TrimSpace(sid)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get revoked session: %w", err)
	}
	return true, nil
}
