// Package zoom provides HTTP client with retry logic for Zoom API interactions
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

// Doer executes HTTP requests
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClientConfig holds configuration for the retry HTTP client
type HTTPClientConfig struct {
	Timeout           time.Duration // Request timeout, including reading the body
	MaxRetries        int           // Maximum number of retries for idempotent requests
	RetryWaitMin      time.Duration // Minimum wait time between retries
	RetryWaitMax      time.Duration // Maximum wait time between retries
	RetryableStatus   []int         // HTTP status codes that should trigger retries
	MaxRedirects      int           // Maximum number of redirects to follow
	RequestsPerSecond float64       // Outbound rate limit, 0 disables limiting
}

// HTTPClientConfigFromDownloadConfig creates HTTPClientConfig from DownloadConfig
func HTTPClientConfigFromDownloadConfig(cfg config.DownloadConfig) HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:           cfg.TimeoutDuration(),
		MaxRetries:        cfg.RetryAttempts,
		RetryWaitMin:      500 * time.Millisecond,
		RetryWaitMax:      5 * time.Second,
		RetryableStatus:   []int{429, 500, 502, 503, 504},
		MaxRedirects:      10,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// DownloadHTTPClientConfig is HTTPClientConfigFromDownloadConfig without
// retries, for recording downloads that the caller restarts as a whole
func DownloadHTTPClientConfig(cfg config.DownloadConfig) HTTPClientConfig {
	httpConfig := HTTPClientConfigFromDownloadConfig(cfg)
	httpConfig.MaxRetries = 0
	return httpConfig
}

// RetryHTTPClient is an HTTP client with retry logic and exponential backoff.
// Only idempotent methods are retried.
type RetryHTTPClient struct {
	client  *http.Client
	config  HTTPClientConfig
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewRetryHTTPClient creates a new HTTP client with retry logic
func NewRetryHTTPClient(config HTTPClientConfig) *RetryHTTPClient {
	if config.RetryWaitMin == 0 {
		config.RetryWaitMin = 500 * time.Millisecond
	}
	if config.RetryWaitMax == 0 {
		config.RetryWaitMax = 5 * time.Second
	}
	if len(config.RetryableStatus) == 0 {
		config.RetryableStatus = []int{429, 500, 502, 503, 504}
	}
	if config.MaxRedirects == 0 {
		config.MaxRedirects = 10
	}

	client := &http.Client{
		Timeout: config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("too many redirects: %d", len(via))
			}
			return nil
		},
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := int(math.Ceil(config.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &RetryHTTPClient{
		client:  client,
		config:  config,
		limiter: limiter,
		logger:  logging.Nop(),
	}
}

// WithLogger logs every attempt at debug level through logger
func (c *RetryHTTPClient) WithLogger(logger logging.Logger) *RetryHTTPClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// APIError represents a Zoom API error response
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom API error %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// HTTPError represents a general HTTP error
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Status)
}

// Do executes an HTTP request with retry logic
func (c *RetryHTTPClient) Do(req *http.Request) (*http.Response, error) {
	maxRetries := c.config.MaxRetries
	if !isIdempotent(req.Method) {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(req.Context()); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		requestID, _ := logging.GetRequestID(req.Context())
		c.logger.LogAPIRequest(logging.APIRequest{
			Method:    req.Method,
			URL:       req.URL.String(),
			Headers:   flattenHeaders(req.Header),
			RequestID: requestID,
		})

		start := time.Now()
		resp, err := c.client.Do(req.Clone(req.Context()))
		c.logResponse(requestID, resp, err, time.Since(start))
		if err != nil {
			if attempt < maxRetries && req.Context().Err() == nil {
				if waitErr := c.waitForRetry(req.Context(), attempt, 0); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		if c.shouldRetry(resp.StatusCode) && attempt < maxRetries {
			if waitErr := c.waitForRetry(req.Context(), attempt, c.parseRetryAfter(resp)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if apiErr := c.parseAPIError(resp.StatusCode, body); apiErr != nil {
			return nil, apiErr
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
}

func (c *RetryHTTPClient) logResponse(requestID string, resp *http.Response, err error, duration time.Duration) {
	entry := logging.APIResponse{
		RequestID: requestID,
		Duration:  duration,
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.StatusCode = resp.StatusCode
		entry.Success = resp.StatusCode < 400
	}
	c.logger.LogAPIResponse(entry)
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	flat := make(map[string]string, len(header))
	for key := range header {
		flat[key] = header.Get(key)
	}
	return flat
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// shouldRetry determines if a request should be retried based on status code
func (c *RetryHTTPClient) shouldRetry(statusCode int) bool {
	for _, retryableStatus := range c.config.RetryableStatus {
		if statusCode == retryableStatus {
			return true
		}
	}
	return false
}

// parseAPIError attempts to parse a Zoom API error response
func (c *RetryHTTPClient) parseAPIError(statusCode int, body []byte) *APIError {
	if len(body) == 0 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil
	}
	if apiErr.Code == 0 && apiErr.Message == "" {
		return nil
	}

	apiErr.Status = statusCode
	return &apiErr
}

// parseRetryAfter parses the Retry-After header and returns the wait duration
func (c *RetryHTTPClient) parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(retryAfter); err == nil {
		if duration := time.Until(t); duration > 0 {
			return duration
		}
	}

	return 0
}

// waitForRetry implements exponential backoff with jitter, honoring Retry-After
func (c *RetryHTTPClient) waitForRetry(ctx context.Context, attempt int, retryAfter time.Duration) error {
	var waitTime time.Duration

	if retryAfter > 0 {
		waitTime = retryAfter
	} else {
		base := float64(c.config.RetryWaitMin)
		exponential := base * math.Pow(2, float64(attempt))

		// ±25% jitter
		jitter := exponential * 0.25 * (rand.Float64()*2 - 1)
		waitTime = time.Duration(exponential + jitter)

		if waitTime < c.config.RetryWaitMin {
			waitTime = c.config.RetryWaitMin
		}
	}
	if waitTime > c.config.RetryWaitMax {
		waitTime = c.config.RetryWaitMax
	}

	timer := time.NewTimer(waitTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client returns the underlying HTTP client
func (c *RetryHTTPClient) Client() *http.Client {
	return c.client
}

// ErrTokenExpired is returned instead of sending a request with an access
// token that expires within TokenExpiryBuffer
var ErrTokenExpired = errors.New("zoom access token expired")

// TokenExpiryBuffer is how long an access token must remain valid for a request to be sent
const TokenExpiryBuffer = time.Minute

// BearerClient adds a fixed bearer token to every request
type BearerClient struct {
	next  Doer
	token *AccessToken
}

// NewBearerClient wraps next so every request carries the access token. A
// token with a known expiry is checked before each request.
func NewBearerClient(next Doer, token *AccessToken) *BearerClient {
	return &BearerClient{
		next:  next,
		token: token,
	}
}

// Do executes the request with an Authorization header
func (c *BearerClient) Do(req *http.Request) (*http.Response, error) {
	if c.token.IsExpired(TokenExpiryBuffer) {
		return nil, fmt.Errorf("%w at %s", ErrTokenExpired, c.token.ExpiresAt.Format(time.RFC3339))
	}
	req.Header.Set("Authorization", "Bearer "+c.token.AccessToken)
	return c.next.Do(req)
}
