package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const inboxKeyPrefix = "notices:"

// InboxRepo stores recent user notices as a capped JSON list, newest first.
type InboxRepo struct {
	client  *goredis.Client
	maxSize int
	ttl     time.Duration
}

type InboxItem struct {
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
	RequiredTier string    `json:"required_tier,omitempty"`
	RetryAfterS  int64     `json:"retry_after_sec,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewInboxRepo(client *goredis.Client, maxSize int, ttl time.Duration) *InboxRepo {
	if maxSize <= 0 {
		maxSize = 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InboxRepo{client: client, maxSize: maxSize, ttl: ttl}
}

func (r *InboxRepo) Push(ctx context.Context, userID int64, item InboxItem) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid inbox user id")
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal inbox item: %w", err)
	}

	key := inboxKey(userID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, int64(r.maxSize-1))
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push inbox item: %w", err)
	}

	return nil
}

// Drain returns and removes every stored notice for the user.
func (r *InboxRepo) Drain(ctx context.Context, userID int64) ([]InboxItem, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if userID <= 0 {
		return nil, fmt.Errorf("invalid inbox user id")
	}

	key := inboxKey(userID)
	pipe := r.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain inbox: %w", err)
	}

	rows := rangeCmd.Val()
	items := make([]InboxItem, 0, len(rows))
	for _, row := range rows {
		var item InboxItem
		if err := json.Unmarshal([]byte(row), &item); err != nil {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func inboxKey(userID int64) string {
	return inboxKeyPrefix + strconv.FormatInt(userID, 10)
}
