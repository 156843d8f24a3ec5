// Package hn reads items from the Hacker News Firebase API.
package hn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/JakeFAU/hn-archiver/internal/archive"
	"github.com/JakeFAU/hn-archiver/internal/metrics"
	"github.com/JakeFAU/hn-archiver/internal/policy/ratelimit"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0/"

const maxBodyBytes = 8 << 20

// Options configures the client.
type Options struct {
	// BaseURL is the API root; it must end with a slash.
	BaseURL string
	// Timeout bounds each attempt.
	// Default: 15s
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	// Default: 3
	MaxRetries int
	// BackoffInitial is the first retry delay before jitter.
	// Default: 500ms
	BackoffInitial time.Duration
	// BackoffMax caps the retry delay.
	// Default: 10s
	BackoffMax time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
	// Limiter optionally gates requests; nil admits everything.
	Limiter *ratelimit.Limiter
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// DefaultOptions returns options with production defaults.
func DefaultOptions() Options {
	return Options{
		BaseURL:        DefaultBaseURL,
		Timeout:        15 * time.Second,
		MaxRetries:     3,
		BackoffInitial: 500 * time.Millisecond,
		BackoffMax:     10 * time.Second,
		UserAgent:      "hn-archiver/1.0",
	}
}

// Client implements archive.ItemSource over HTTP.
type Client struct {
	client *http.Client
	base   *url.URL
	opts   Options
}

// NewClient validates opts and builds a Client. Zero durations and a
// negative retry count fall back to DefaultOptions.
func NewClient(opts Options) (*Client, error) {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = def.BackoffInitial
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = max(def.BackoffMax, opts.BackoffInitial)
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 100,
				MaxIdleConns:        200,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{client: hc, base: base, opts: opts}, nil
}

// MaxItemID returns the current largest item id.
func (c *Client) MaxItemID(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "maxitem", "maxitem.json")
	if err != nil {
		return 0, err
	}
	if body == nil {
		return 0, errors.New("maxitem: empty response")
	}
	var id int64
	if err := json.Unmarshal(body, &id); err != nil {
		return 0, fmt.Errorf("decode maxitem: %w", err)
	}
	return id, nil
}

// Item returns the raw JSON for id, or (nil, nil) when the API has no such
// item.
func (c *Client) Item(ctx context.Context, id int64) ([]byte, error) {
	return c.get(ctx, "item", "item/"+strconv.FormatInt(id, 10)+".json")
}

func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	target := c.base.ResolveReference(&url.URL{Path: path}).String()
	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, fmt.Errorf("get %s: %w", path, err)
			}
		}
		body, retry, err := c.do(ctx, endpoint, target)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, fmt.Errorf("get %s: %w", path, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("get %s failed after %d attempts: %w", path, c.opts.MaxRetries+1, lastErr)
}

// do performs one attempt. A nil body with a nil error means absent.
func (c *Client) do(ctx context.Context, endpoint, target string) ([]byte, bool, error) {
	release, err := c.opts.Limiter.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest(endpoint, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, true, fmt.Errorf("%w: %w", archive.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	metrics.ObserveRemoteRequest(endpoint, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", archive.ErrRemoteUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, true, fmt.Errorf("%w: read body: %w", archive.ErrRemoteUnavailable, err)
	}
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false, nil
	}
	return body, false, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.BackoffInitial * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.BackoffMax || backoff <= 0 {
		backoff = c.opts.BackoffMax
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
