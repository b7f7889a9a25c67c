// Package httpclient provides the shared pooled HTTP client used by every
// fetcher and the AI provider. One client per process: bounded connection
// pool, retries with backoff, a global token-bucket limiter on POST requests,
// and typed errors for the callers' recovery policies.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"newsflow/internal/resilience/retry"
)

// Config holds connection pool and timeout settings.
type Config struct {
	// MaxConns caps the idle connections kept in the pool across all hosts.
	// The total number of concurrent connections is not capped; only the
	// per-host limit bounds it.
	MaxConns int

	// MaxConnsPerHost caps concurrent connections per host.
	MaxConnsPerHost int

	// Timeout is the total per-request timeout.
	Timeout time.Duration

	// ConnectTimeout bounds the dial phase.
	ConnectTimeout time.Duration

	// PostRatePerSecond is the global token-bucket rate for POST requests.
	PostRatePerSecond float64

	// PostBurst is the limiter burst size.
	PostBurst int

	// MaxBodySize caps response bodies read into memory.
	MaxBodySize int64
}

// DefaultConfig returns production defaults: 20 idle pooled connections, 5
// concurrent connections per host, 30s/10s timeouts.
func DefaultConfig() Config {
	return Config{
		MaxConns:          20,
		MaxConnsPerHost:   5,
		Timeout:           30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		PostRatePerSecond: 1,
		PostBurst:         2,
		MaxBodySize:       10 * 1024 * 1024,
	}
}

// LoadConfigFromEnv loads configuration from environment variables,
// falling back to defaults for anything unset or invalid.
//
// Environment variables:
//   - HTTP_MAX_CONNS, HTTP_MAX_CONNS_PER_HOST: integers
//   - HTTP_TIMEOUT, HTTP_CONNECT_TIMEOUT: duration strings
//   - HTTP_POST_RATE: float requests/second for the POST limiter
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("HTTP_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConns = n
		}
	}
	if v := os.Getenv("HTTP_MAX_CONNS_PER_HOST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConnsPerHost = n
		}
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("HTTP_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ConnectTimeout = d
		}
	}
	if v := os.Getenv("HTTP_POST_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.PostRatePerSecond = f
		}
	}
	return cfg
}

// Client is the shared pooled HTTP client.
type Client struct {
	http        *http.Client
	retryConfig retry.Config
	postLimiter *rate.Limiter
	maxBodySize int64
}

// New creates a Client with the given configuration.
func New(cfg Config) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		retryConfig: retry.HTTPConfig(),
		postLimiter: rate.NewLimiter(rate.Limit(cfg.PostRatePerSecond), cfg.PostBurst),
		maxBodySize: cfg.MaxBodySize,
	}
}

// Response carries the decoded body and final status of a request.
type Response struct {
	Status   int
	Body     []byte
	Header   http.Header
	FinalURL string
}

// Get performs a GET request with retries on transient failures.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, headers)
}

// Post performs a POST request. It acquires the global token bucket first so
// bursts toward rate-limited APIs are smoothed across the whole process.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	if err := c.postLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, body, headers)
}

// FetchText fetches a URL and returns the body as a string.
func (c *Client) FetchText(ctx context.Context, url string, headers map[string]string) (string, error) {
	resp, err := c.Get(ctx, url, headers)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// FetchJSON fetches a URL and decodes the JSON body into out.
func (c *Client) FetchJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	resp, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode JSON from %s: %w", url, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	var out *Response

	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		resp, err := c.doOnce(ctx, method, url, body, headers)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if retryErr != nil {
		return nil, c.classify(retryErr, url)
	}
	return out, nil
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		// Surface as a retry.HTTPError so the backoff loop can decide;
		// the final classification into typed errors happens in classify.
		httpErr := &retry.HTTPError{StatusCode: resp.StatusCode, Message: url}
		if resp.StatusCode == http.StatusTooManyRequests {
			// Keep the server's Retry-After hint alongside the status.
			return nil, &tooManyRequestsError{
				inner:      httpErr,
				retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}
		return nil, httpErr
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Response{
		Status:   resp.StatusCode,
		Body:     data,
		Header:   resp.Header,
		FinalURL: finalURL,
	}, nil
}

// tooManyRequestsError carries the 429 Retry-After hint through the retry
// loop. Unwrapping to the retry.HTTPError keeps 429 retryable in the backoff
// layer.
type tooManyRequestsError struct {
	inner      *retry.HTTPError
	retryAfter time.Duration
}

func (e *tooManyRequestsError) Error() string { return e.inner.Error() }

func (e *tooManyRequestsError) Unwrap() error { return e.inner }

// defaultRetryAfter applies when the 429 response carries no usable
// Retry-After header.
const defaultRetryAfter = 30 * time.Second

// parseRetryAfter reads a Retry-After value in either of its two wire forms:
// delay seconds or an HTTP-date. Returns 0 when absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// classify converts the retry layer's final error into this package's typed
// error taxonomy.
func (c *Client) classify(err error, url string) error {
	var rateErr *tooManyRequestsError
	if errors.As(err, &rateErr) {
		retryAfter := rateErr.retryAfter
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfter
		}
		return &RateLimitedError{RetryAfter: retryAfter, URL: url}
	}

	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return &RateLimitedError{RetryAfter: defaultRetryAfter, URL: url}
		}
		return &HTTPError{Status: httpErr.StatusCode, URL: url}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err}
	}
	return err
}
