// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package slack

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Configuration constants for the Web API.
const (
	// DefaultBaseURL is the base URL for the workspace Web API.
	DefaultBaseURL = "https://slack.com/api"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for
	// transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// requestsPerSecond paces outbound calls under the Web API tier
	// limits so paging a large channel list does not trip 429s.
	requestsPerSecond = 1
	requestBurst      = 4
)

// sharedHTTPClient is a pooled client reused by every gateway instance.
// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
	Timeout: DefaultTimeout,
}

// Error variables for common gateway errors.
var (
	// ErrNotConfigured indicates the bot token is not set.
	ErrNotConfigured = errors.New("bot token not configured")

	// ErrAuthFailed indicates authentication failed (invalid or revoked
	// token). Never retried.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrChannelNotFound indicates the channel does not exist or is not
	// visible to the bot identity.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrNotInChannel indicates the bot identity is not a member.
	ErrNotInChannel = errors.New("not in channel")
)

// APIError represents an application-level error envelope from the API
// ("ok": false with an error code), or an HTTP-level failure.
type APIError struct {
	Code   string // API error code, e.g. "channel_not_found"
	Status int    // HTTP status, 200 for application-level errors
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("workspace API error [%s] (HTTP %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("workspace API error (HTTP %d)", e.Status)
}

// RateLimitError carries the server-requested retry delay from a 429.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
	}
	return "rate limited"
}

// Is allows RateLimitError to be compared with ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the REST gateway to the workspace Web API.
type Client struct {
	botToken   string
	appToken   string
	baseURL    string
	maxRetries int
	limiter    *rate.Limiter

	// userNames caches user ID to display name lookups.
	userMu    sync.Mutex
	userNames map[string]string
}

// NewClient creates a gateway authenticated by the bot token. The app
// token is only used by OpenSocketURL to mint the event-stream URL.
func NewClient(botToken, appToken string) *Client {
	return &Client{
		botToken:   strings.TrimSpace(botToken),
		appToken:   strings.TrimSpace(appToken),
		baseURL:    DefaultBaseURL,
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst),
		userNames:  make(map[string]string),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// WithMaxRetries sets the maximum number of retry attempts.
func (c *Client) WithMaxRetries(maxRetries int) *Client {
	c.maxRetries = maxRetries
	return c
}

// IsConfigured returns true if the client has a bot token.
func (c *Client) IsConfigured() bool {
	return c.botToken != ""
}

// TokenMasked returns a masked identifier of the bot token for logging.
// SECURITY: Never exposes token fragments, only a fingerprint.
func (c *Client) TokenMasked() string {
	if c.botToken == "" {
		return "[not set]"
	}
	h := sha256.Sum256([]byte(c.botToken))
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(c.botToken), hex.EncodeToString(h[:4]))
}

// =============================================================================
// TOKEN VALIDATION
// =============================================================================

// ValidateBotToken checks whether the token looks like a bot credential.
// This does not verify it with the server, just the shape.
func ValidateBotToken(token string) bool {
	token = strings.TrimSpace(token)
	return strings.HasPrefix(token, "xoxb-") && len(token) > 10
}

// ValidateAppToken checks whether the token looks like an app-level
// credential (used for the event-stream handshake).
func ValidateAppToken(token string) bool {
	token = strings.TrimSpace(token)
	return strings.HasPrefix(token, "xapp-") && len(token) > 10
}

// =============================================================================
// RETRY LOGIC
// =============================================================================

// timeAfter is time.After, indirected so tests can collapse backoff
// waits.
var timeAfter = time.After

// calculateBackoff returns the delay to wait before the next retry.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: 500ms, 1000ms, 2000ms, etc.
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// isRetryable determines if an error should trigger a retry.
func (c *Client) isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrAuthFailed) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}

	// Remaining errors are transport-level; retry them.
	return true
}

// retryDelay picks the wait before the given retry attempt, honoring a
// server-provided Retry-After over the computed backoff.
func (c *Client) retryDelay(attempt int, err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return c.calculateBackoff(attempt)
}

// parseRetryAfter reads the Retry-After header from a 429 response.
func parseRetryAfter(resp *http.Response) error {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return ErrRateLimited
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Duration(seconds) * time.Second}
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		return &RateLimitError{RetryAfter: time.Until(t)}
	}
	return ErrRateLimited
}

// readResponse reads the response body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}
