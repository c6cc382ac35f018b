package entropy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/ahl-labs/lotteryd/internal/config"
)

// Client fetches the Bitcoin chain tip hash to seed epoch entropy. The
// tip hash is public and independently verifiable, so nobody operating
// the lottery can steer it.
//
// Seed never fails: when the source is unreachable past retries it
// returns the configured fallback seed, keeping the round loop alive.
type Client struct {
	url        string
	fallback   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// NewClient creates a tip-hash client from configuration.
func NewClient(cfg config.EntropyConfig, opts ...Option) *Client {
	c := &Client{
		url:      cfg.URL,
		fallback: cfg.FallbackSeed,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:       slog.Default(),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBackoff sets the initial retry backoff.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.retryBackoff = d
	}
}

// Seed returns the current chain tip hash, or the fallback seed when the
// source stays unreachable.
func (c *Client) Seed(ctx context.Context) string {
	hash, err := c.fetchWithRetry(ctx)
	if err != nil {
		c.logger.Warn("entropy source unreachable, using fallback seed",
			"url", c.url,
			"error", err,
		)
		return c.fallback
	}
	return hash
}

// TipHash returns the current chain tip hash or an error, without the
// fallback. Callers that must distinguish live entropy use this.
func (c *Client) TipHash(ctx context.Context) (string, error) {
	return c.fetchWithRetry(ctx)
}

// fetchWithRetry fetches the tip hash with exponential backoff.
func (c *Client) fetchWithRetry(ctx context.Context) (string, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying tip hash fetch",
				"attempt", attempt,
				"backoff", jitter,
			)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		hash, err := c.fetch(ctx)
		if err == nil {
			return hash, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", lastErr
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// fetch performs one tip-hash request.
func (c *Client) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tip hash status %d", resp.StatusCode)
	}

	hash := strings.TrimSpace(string(body))
	if hash == "" {
		return "", fmt.Errorf("empty tip hash response")
	}
	return hash, nil
}
