// Package shopify implements the order, catalog and customer gateways on
// top of the Shopify Admin REST and GraphQL APIs.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultAPIVersion is the Admin API version used when none is configured.
const DefaultAPIVersion = "2024-01"

// DefaultTimeout bounds every Admin API request.
const DefaultTimeout = 15 * time.Second

var (
	// ErrNotConfigured is returned by NewClient when shop or token are missing.
	ErrNotConfigured = errors.New("shopify client not configured")
	// ErrUserErrors is wrapped when a GraphQL mutation reports userErrors.
	ErrUserErrors = errors.New("shopify rejected the mutation")
)

// StatusError is returned for non-2xx Admin API responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shopify API returned status %d: %s", e.StatusCode, e.Body)
}

// Opts holds configuration options for the Shopify client.
type Opts struct {
	Shop        string
	AccessToken string
	APIVersion  string
	BaseURL     string
	HTTPClient  *http.Client
}

// Option defines a configuration option for the Shopify client.
type Option func(*Opts)

// WithShop sets the shop subdomain ("my-store" or "my-store.myshopify.com").
func WithShop(shop string) Option {
	return func(o *Opts) { o.Shop = shop }
}

// WithAccessToken sets the Admin API access token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithAPIVersion overrides the Admin API version.
func WithAPIVersion(v string) Option {
	return func(o *Opts) { o.APIVersion = v }
}

// WithBaseURL points the client at a full Admin API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to one Shopify store.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a Shopify client from options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{APIVersion: DefaultAPIVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" || (cfg.Shop == "" && cfg.BaseURL == "") {
		return nil, ErrNotConfigured
	}
	base := cfg.BaseURL
	if base == "" {
		shop := strings.TrimSuffix(strings.TrimSpace(cfg.Shop), ".myshopify.com")
		base = fmt.Sprintf("https://%s.myshopify.com/admin/api/%s", shop, cfg.APIVersion)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("Shopify.NewClient: client created", "baseURL", base)
	return &Client{baseURL: strings.TrimRight(base, "/"), token: cfg.AccessToken, http: hc, now: time.Now}, nil
}

// do sends a request and returns the raw body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("shopify request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read shopify response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return data, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}
	return data, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
