package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ledgerbridge/banksync-core/internal/core/domain"
	"github.com/ledgerbridge/banksync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.BankProvider = (*Client)(nil)

// DefaultRetryAfter is used when a 429 response carries no usable
// Retry-After header.
const DefaultRetryAfter = 3600 * time.Second

// tokenRefreshMargin renews the access token slightly before its expiry.
const tokenRefreshMargin = 30 * time.Second

// Config holds provider client configuration.
type Config struct {
	BaseURL   string
	SecretID  string
	SecretKey string
	Timeout   time.Duration
}

// Client talks to the open-banking data provider. It manages the short-lived
// access / longer-lived refresh token pair itself and translates provider
// failures into the domain error taxonomy: 429 into *domain.RateLimitError,
// 404 into domain.ErrNotFound, everything else non-2xx into a transient
// error.
type Client struct {
	baseURL    string
	secretID   string
	secretKey  string
	httpClient *http.Client
	now        func() time.Time

	mu             sync.Mutex
	accessToken    string
	accessExpires  time.Time
	refreshToken   string
	refreshExpires time.Time
}

// NewClient creates a provider API client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		secretID:   cfg.SecretID,
		secretKey:  cfg.SecretKey,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type tokenPair struct {
	Access         string `json:"access"`
	AccessExpires  int    `json:"access_expires"`
	Refresh        string `json:"refresh,omitempty"`
	RefreshExpires int    `json:"refresh_expires,omitempty"`
}

// ensureToken returns a valid access token, refreshing or re-issuing as
// needed.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.accessToken != "" && now.Add(tokenRefreshMargin).Before(c.accessExpires) {
		return c.accessToken, nil
	}

	if c.refreshToken != "" && now.Add(tokenRefreshMargin).Before(c.refreshExpires) {
		var pair tokenPair
		err := c.doUnauthed(ctx, http.MethodPost, "/api/v2/token/refresh/",
			map[string]string{"refresh": c.refreshToken}, &pair)
		if err == nil {
			c.accessToken = pair.Access
			c.accessExpires = now.Add(time.Duration(pair.AccessExpires) * time.Second)
			return c.accessToken, nil
		}
		// Refresh failed; fall through to full issuance.
	}

	var pair tokenPair
	err := c.doUnauthed(ctx, http.MethodPost, "/api/v2/token/new/",
		map[string]string{"secret_id": c.secretID, "secret_key": c.secretKey}, &pair)
	if err != nil {
		return "", fmt.Errorf("token issuance: %w", err)
	}

	c.accessToken = pair.Access
	c.accessExpires = now.Add(time.Duration(pair.AccessExpires) * time.Second)
	c.refreshToken = pair.Refresh
	c.refreshExpires = now.Add(time.Duration(pair.RefreshExpires) * time.Second)
	return c.accessToken, nil
}

// doUnauthed performs a request without a bearer token (token endpoints).
func (c *Client) doUnauthed(ctx context.Context, method, path string, body, out any) error {
	return c.roundTrip(ctx, method, path, "", body, out)
}

// do performs an authenticated request.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, method, path, token, body, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewTransientError(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response %s %s: %w", method, path, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.NewRateLimitError("provider", c.retryAfter(resp))

	case resp.StatusCode == http.StatusUnauthorized:
		// Tokens invalidated server-side, possibly revoked credentials. Drop
		// the whole pair so the next call re-issues from the secret.
		c.mu.Lock()
		c.accessToken = ""
		c.refreshToken = ""
		c.mu.Unlock()
		return domain.NewTransientError(fmt.Errorf("%s %s: %w", method, path, domain.ErrTokenExpired))

	default:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.NewTransientError(fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data))))
	}
}

// retryAfter reads the Retry-After header (seconds or HTTP date), falling
// back to the fixed default when absent or unparseable.
func (c *Client) retryAfter(resp *http.Response) time.Time {
	now := c.now()
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return now.Add(DefaultRetryAfter)
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(header); err == nil {
		return t
	}
	return now.Add(DefaultRetryAfter)
}
