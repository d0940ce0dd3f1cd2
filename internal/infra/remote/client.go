// Package remote calls the counter operations of a backend over HTTP RPC.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mbyo2/zambia-match-time/internal/domain/model"
	"github.com/mbyo2/zambia-match-time/internal/infra/httpclient"
	"github.com/mbyo2/zambia-match-time/internal/transport/http/dto"
	httperrors "github.com/mbyo2/zambia-match-time/internal/transport/http/errors"
)

const (
	ServiceKeyHeader = "X-Service-Key"

	OpCheckDiscoveryRateLimit   = "check_discovery_rate_limit"
	OpCountRecentAuditedActions = "count_recent_audited_actions"
	OpCheckGenericRateLimit     = "check_generic_rate_limit"
	OpGetSubscription           = "get_subscription"
	OpGetDailySwipeRemaining    = "get_daily_swipe_remaining"
	OpIncrementSwipeCount       = "increment_swipe_count"
	OpTryConsume                = "try_consume"
	OpGetOrCreateDailyReward    = "get_or_create_daily_reward"
	OpClaimDailyReward          = "claim_daily_reward"

	maxErrorBody = 4 << 10
)

// RequestError describes a failed RPC. Transient errors are network failures,
// throttling and 5xx responses; callers treat them as fail-open or fail-neutral.
type RequestError struct {
	Op        string
	Status    int
	Code      string
	Transient bool
	Err       error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("rpc %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("rpc %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Transient
}

type Config struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
}

type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote base url is required")
	}

	return &Client{
		baseURL:    baseURL,
		serviceKey: cfg.ServiceKey,
		httpClient: httpclient.New(cfg.Timeout),
	}, nil
}

func (c *Client) CheckDiscoveryRateLimit(ctx context.Context, userID int64) (bool, error) {
	var out dto.RPCAllowedResponse
	if err := c.call(ctx, OpCheckDiscoveryRateLimit, dto.RPCUserRequest{UserID: userID}, &out); err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) CountRecentAuditedActions(ctx context.Context, userID int64, actionType string, since time.Time) (int, error) {
	var out dto.RPCCountResponse
	err := c.call(ctx, OpCountRecentAuditedActions, dto.RPCCountAuditedRequest{
		UserID:     userID,
		ActionType: actionType,
		Since:      since.UTC(),
	}, &out)
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) CheckGenericRateLimit(ctx context.Context, userID int64, actionType string, maxAttempts, windowMinutes int) (bool, error) {
	var out dto.RPCAllowedResponse
	err := c.call(ctx, OpCheckGenericRateLimit, dto.RPCGenericRateLimitRequest{
		UserID:        userID,
		ActionType:    actionType,
		MaxAttempts:   maxAttempts,
		WindowMinutes: windowMinutes,
	}, &out)
	if err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) GetSubscription(ctx context.Context, userID int64) (*model.SubscriptionRecord, error) {
	var out dto.RPCSubscriptionResponse
	if err := c.call(ctx, OpGetSubscription, dto.RPCUserRequest{UserID: userID}, &out); err != nil {
		return nil, err
	}
	return out.Subscription, nil
}

func (c *Client) GetDailySwipeRemaining(ctx context.Context, userID int64) (*int, error) {
	var out dto.RPCRemainingResponse
	if err := c.call(ctx, OpGetDailySwipeRemaining, dto.RPCUserRequest{UserID: userID}, &out); err != nil {
		return nil, err
	}
	return out.Remaining, nil
}

func (c *Client) IncrementSwipeCount(ctx context.Context, userID int64) error {
	return c.call(ctx, OpIncrementSwipeCount, dto.RPCUserRequest{UserID: userID}, nil)
}

func (c *Client) TryConsume(ctx context.Context, userID int64, resource string) (bool, error) {
	var out dto.RPCAllowedResponse
	err := c.call(ctx, OpTryConsume, dto.RPCTryConsumeRequest{UserID: userID, Resource: resource}, &out)
	if err != nil {
		return false, err
	}
	return out.Allowed, nil
}

func (c *Client) GetOrCreateDailyReward(ctx context.Context, userID int64, date string) (model.DailyReward, error) {
	var out dto.RPCRewardResponse
	err := c.call(ctx, OpGetOrCreateDailyReward, dto.RPCDailyRewardRequest{UserID: userID, Date: date}, &out)
	if err != nil {
		return model.DailyReward{}, err
	}
	return out.Reward, nil
}

func (c *Client) ClaimDailyReward(ctx context.Context, rewardID uuid.UUID) (model.DailyReward, error) {
	var out dto.RPCRewardResponse
	if err := c.call(ctx, OpClaimDailyReward, dto.RPCClaimRewardRequest{RewardID: rewardID}, &out); err != nil {
		return model.DailyReward{}, err
	}
	return out.Reward, nil
}

func (c *Client) call(ctx context.Context, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+op, bytes.NewReader(body))
	if err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.serviceKey != "" {
		req.Header.Set(ServiceKeyHeader, c.serviceKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Transient: true, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Status: resp.StatusCode, Transient: true, Err: fmt.Errorf("decode response: %w", err)}
	}

	return nil
}

func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr httperrors.APIError
	_ = json.Unmarshal(raw, &apiErr)

	reqErr := &RequestError{
		Op:        op,
		Status:    resp.StatusCode,
		Code:      apiErr.Code,
		Transient: resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
	}

	switch apiErr.Code {
	case httperrors.CodeValidation:
		reqErr.Err = model.ErrInvalidArgument
	case httperrors.CodeUnsupportedResource:
		reqErr.Err = model.ErrUnsupportedResource
	case httperrors.CodeRewardNotFound:
		reqErr.Err = model.ErrRewardNotFound
	case httperrors.CodeRewardAlreadyClaimed:
		reqErr.Err = model.ErrRewardAlreadyClaimed
	default:
		msg := strings.TrimSpace(apiErr.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		reqErr.Err = errors.New(msg)
	}

	return reqErr
}
