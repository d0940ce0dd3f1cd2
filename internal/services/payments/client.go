// Package payments talks to the external billing collaborator that owns
// checkout and customer portal sessions.
package payments

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

	"github.com/mbyo2/zambia-match-time/internal/domain/enums"
	"github.com/mbyo2/zambia-match-time/internal/infra/httpclient"
)

var (
	ErrNotConfigured = errors.New("payments collaborator is not configured")
	ErrNoPrice       = errors.New("no price configured for tier")
	ErrEmptyURL      = errors.New("payments collaborator returned no url")
)

type Client interface {
	CreateCheckoutSession(ctx context.Context, userID int64, priceRef string) (string, error)
	CreatePortalSession(ctx context.Context, userID int64) (string, error)
}

// PriceBook maps a paid tier to the collaborator's price reference.
type PriceBook map[enums.Tier]string

func NewPriceBook(refs map[string]string) (PriceBook, error) {
	book := make(PriceBook, len(refs))
	for rawTier, ref := range refs {
		tier, err := enums.ParseTier(rawTier)
		if err != nil {
			return nil, fmt.Errorf("price book: %w", err)
		}
		if !tier.IsPaid() {
			return nil, fmt.Errorf("price book: tier %s cannot be purchased", tier)
		}
		if strings.TrimSpace(ref) == "" {
			continue
		}
		book[tier] = strings.TrimSpace(ref)
	}
	return book, nil
}

func (b PriceBook) PriceRef(tier enums.Tier) (string, bool) {
	ref, ok := b[tier]
	return ref, ok
}

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type sessionRequest struct {
	UserID   int64  `json:"user_id"`
	PriceRef string `json:"price_ref,omitempty"`
}

type sessionResponse struct {
	URL string `json:"url"`
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrNotConfigured
	}

	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpclient.New(cfg.Timeout),
	}, nil
}

func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, userID int64, priceRef string) (string, error) {
	if strings.TrimSpace(priceRef) == "" {
		return "", ErrNoPrice
	}
	return c.createSession(ctx, "/checkout_sessions", sessionRequest{UserID: userID, PriceRef: priceRef})
}

func (c *HTTPClient) CreatePortalSession(ctx context.Context, userID int64) (string, error) {
	return c.createSession(ctx, "/portal_sessions", sessionRequest{UserID: userID})
}

func (c *HTTPClient) createSession(ctx context.Context, path string, payload sessionRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("create session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", ErrEmptyURL
	}

	return out.URL, nil
}
