package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/metrics"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"
	// APIVersion pins the REST API version header.
	APIVersion = "2022-11-28"
	// DefaultUserAgent identifies the bot to GitHub.
	DefaultUserAgent = "reciprocity-bot"

	// DefaultMaxTransientRetries is the retry cap for gateway errors and
	// transport failures. Rate-limit waits are not counted.
	DefaultMaxTransientRetries = 5
	// DefaultTransientBackoff is the wait between transient retries.
	DefaultTransientBackoff = 10 * time.Second
	// DefaultSecondaryLimitBackoff applies when a rate-limit response has
	// neither a reset timestamp nor Retry-After.
	DefaultSecondaryLimitBackoff = 60 * time.Second
	// DefaultRateLimitMargin is added past the advertised reset time.
	DefaultRateLimitMargin = 1 * time.Second

	// MaxPageSize is the largest per_page value the API accepts.
	MaxPageSize = 100

	maxErrorBody = 64 << 10
)

// HTTPClient interface for HTTP operations (allows mocking in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RequestClient issues authenticated GitHub API calls and absorbs
// throttling and transient failures. Rate-limit responses are retried
// after the advertised reset for as long as the context allows;
// gateway errors are retried up to a fixed cap. Any other failure is
// returned as an *APIError.
type RequestClient struct {
	baseURL               string
	token                 string
	userAgent             string
	httpClient            HTTPClient
	clock                 clock.Clock
	logger                *slog.Logger
	metrics               *metrics.Metrics
	maxTransientRetries   int
	transientBackoff      time.Duration
	secondaryLimitBackoff time.Duration
	rateLimitMargin       time.Duration
}

// NewRequestClient creates a request client, filling defaults for unset fields.
func NewRequestClient(config ClientConfig) *RequestClient {
	c := &RequestClient{
		baseURL:               strings.TrimRight(config.BaseURL, "/"),
		token:                 config.Token,
		userAgent:             config.UserAgent,
		httpClient:            config.HTTPClient,
		clock:                 config.Clock,
		logger:                config.Logger,
		metrics:               config.Metrics,
		maxTransientRetries:   config.MaxTransientRetries,
		transientBackoff:      config.TransientBackoff,
		secondaryLimitBackoff: config.SecondaryLimitBackoff,
		rateLimitMargin:       config.RateLimitMargin,
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.maxTransientRetries <= 0 {
		c.maxTransientRetries = DefaultMaxTransientRetries
	}
	if c.transientBackoff <= 0 {
		c.transientBackoff = DefaultTransientBackoff
	}
	if c.secondaryLimitBackoff <= 0 {
		c.secondaryLimitBackoff = DefaultSecondaryLimitBackoff
	}
	if c.rateLimitMargin <= 0 {
		c.rateLimitMargin = DefaultRateLimitMargin
	}

	return c
}

// Do performs method on path (relative to the base URL) with optional
// query parameters. It returns the response for 2xx and 304 statuses
// and an *APIError for any other final status.
//
// Do blocks during backoff; the wait ends early with ctx.Err() if the
// context is cancelled.
func (c *RequestClient) Do(ctx context.Context, method, path string, query url.Values) (*Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	transientFailures := 0
	for {
		resp, err := c.send(ctx, method, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			transientFailures++
			if transientFailures > c.maxTransientRetries {
				return nil, fmt.Errorf("%s %s: giving up after %d attempts: %w", method, path, transientFailures, err)
			}
			c.logger.Warn("request failed, retrying",
				"method", method, "path", path, "attempt", transientFailures,
				"backoff", c.transientBackoff, "error", err)
			c.metrics.Retry(metrics.RetryTransient)
			if err := c.wait(ctx, c.transientBackoff); err != nil {
				return nil, err
			}
			continue
		}

		if wait, reason, limited := c.rateLimitWait(resp); limited {
			c.logger.Warn("rate limit exceeded, waiting",
				"method", method, "path", path, "reason", reason, "wait", wait.Round(time.Second))
			c.metrics.Retry(reason)
			if err := c.wait(ctx, wait); err != nil {
				return nil, err
			}
			transientFailures = 0
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			transientFailures++
			if transientFailures > c.maxTransientRetries {
				return nil, newAPIError(method, path, resp)
			}
			c.logger.Warn("GitHub temporarily unavailable, retrying",
				"method", method, "path", path, "status", resp.StatusCode,
				"attempt", transientFailures, "backoff", c.transientBackoff)
			c.metrics.Retry(metrics.RetryTransient)
			if err := c.wait(ctx, c.transientBackoff); err != nil {
				return nil, err
			}
			continue
		}

		if isSuccess(resp.StatusCode) {
			return resp, nil
		}
		return nil, newAPIError(method, path, resp)
	}
}

// send performs a single attempt and reads the whole body.
func (c *RequestClient) send(ctx context.Context, method, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// rateLimitWait decides whether resp is a throttling response and how
// long to wait before retrying it.
func (c *RequestClient) rateLimitWait(resp *Response) (time.Duration, string, bool) {
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return 0, "", false
	}

	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		if resetUnix, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			wait := time.Unix(resetUnix, 0).Sub(c.clock.Now()) + c.rateLimitMargin
			if wait < c.rateLimitMargin {
				wait = c.rateLimitMargin
			}
			return wait, metrics.RetryRateLimit, true
		}
		return c.secondaryLimitBackoff, metrics.RetryRateLimit, true
	}

	if resp.StatusCode == http.StatusTooManyRequests || isRateLimitMessage(string(resp.Body)) {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second, metrics.RetrySecondaryLimit, true
		}
		return c.secondaryLimitBackoff, metrics.RetrySecondaryLimit, true
	}

	return 0, "", false
}

func (c *RequestClient) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isSuccess(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}

func newAPIError(method, path string, resp *Response) *APIError {
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	message := http.StatusText(resp.StatusCode)
	var wire struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		message = wire.Message
	}

	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    message,
		Body:       body,
	}
}
