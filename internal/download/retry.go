// Package download provides retry policies for idempotent transfer operations
// and restartable file downloads
package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// ErrorType represents different categories of errors for retry logic
type ErrorType string

const (
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeServer    ErrorType = "server"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeClient    ErrorType = "client"
	ErrorTypeCanceled  ErrorType = "canceled"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// StatusCoder is implemented by errors that carry an HTTP status code
type StatusCoder interface {
	HTTPStatus() int
}

// RetryConfig holds configuration for retry strategies
type RetryConfig struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	Multiplier  float64       `json:"multiplier"`

	Jitter        bool `json:"jitter"`
	JitterPercent int  `json:"jitter_percent"` // 0-100

	RetryableErrors []ErrorType   `json:"retryable_errors"`
	RateLimitDelay  time.Duration `json:"rate_limit_delay"`
}

// DefaultRetryConfig returns the retry configuration for a given number of retries.
// MaxAttempts counts the first try.
func DefaultRetryConfig(retries int) RetryConfig {
	if retries < 0 {
		retries = 0
	}
	return RetryConfig{
		MaxAttempts:   retries + 1,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		JitterPercent: 25,
		RetryableErrors: []ErrorType{
			ErrorTypeNetwork,
			ErrorTypeTimeout,
			ErrorTypeServer,
			ErrorTypeRateLimit,
		},
		RateLimitDelay: 5 * time.Second,
	}
}

// ValidateRetryConfig validates a retry configuration
func ValidateRetryConfig(config RetryConfig) error {
	if config.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if config.BaseDelay < 0 {
		return fmt.Errorf("base_delay cannot be negative")
	}
	if config.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0")
	}
	if config.MaxDelay > 0 && config.MaxDelay < config.BaseDelay {
		return fmt.Errorf("max_delay cannot be less than base_delay")
	}
	if config.JitterPercent < 0 || config.JitterPercent > 100 {
		return fmt.Errorf("jitter_percent must be between 0 and 100")
	}
	return nil
}

// RetryStrategy decides whether and when to retry
type RetryStrategy interface {
	// CalculateDelay returns the delay before the next attempt and whether to retry.
	// attempt is the number of attempts already made.
	CalculateDelay(errorType ErrorType, attempt int) (time.Duration, bool)
	IsRetryable(errorType ErrorType) bool
	GetConfig() RetryConfig
}

type retryStrategy struct {
	config RetryConfig

	mu     sync.Mutex
	random *rand.Rand
}

// NewRetryStrategy creates a new retry strategy with the given configuration
func NewRetryStrategy(config RetryConfig) RetryStrategy {
	return &retryStrategy{
		config: config,
		random: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (rs *retryStrategy) CalculateDelay(errorType ErrorType, attempt int) (time.Duration, bool) {
	if attempt >= rs.config.MaxAttempts {
		return 0, false
	}
	if !rs.IsRetryable(errorType) {
		return 0, false
	}

	var delay time.Duration
	if errorType == ErrorTypeRateLimit && rs.config.RateLimitDelay > 0 {
		delay = rs.config.RateLimitDelay
	} else {
		delay = rs.exponentialBackoff(attempt - 1)
	}

	if rs.config.Jitter {
		delay = rs.applyJitter(delay)
	}
	if rs.config.MaxDelay > 0 && delay > rs.config.MaxDelay {
		delay = rs.config.MaxDelay
	}

	return delay, true
}

// exponentialBackoff returns base_delay * multiplier^retry
func (rs *retryStrategy) exponentialBackoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if rs.config.BaseDelay == 0 {
		return 0
	}

	multiplier := rs.config.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(rs.config.BaseDelay) * math.Pow(multiplier, float64(retry))
	if rs.config.MaxDelay > 0 && delay > float64(rs.config.MaxDelay) {
		delay = float64(rs.config.MaxDelay)
	}
	return time.Duration(delay)
}

func (rs *retryStrategy) applyJitter(delay time.Duration) time.Duration {
	if rs.config.JitterPercent <= 0 || delay <= 0 {
		return delay
	}

	jitterRange := float64(delay) * float64(rs.config.JitterPercent) / 100.0

	rs.mu.Lock()
	r := rs.random.Float64()
	rs.mu.Unlock()

	jittered := float64(delay) + (r-0.5)*2*jitterRange
	if jittered < 0 {
		jittered = float64(delay) * 0.1
	}
	return time.Duration(jittered)
}

func (rs *retryStrategy) IsRetryable(errorType ErrorType) bool {
	for _, retryable := range rs.config.RetryableErrors {
		if retryable == errorType {
			return true
		}
	}
	return false
}

func (rs *retryStrategy) GetConfig() RetryConfig {
	return rs.config
}

// ClassifyError classifies an error into an ErrorType for retry logic
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	if errors.Is(err, zoom.ErrTokenExpired) {
		return ErrorTypeAuth
	}

	var httpErr *zoom.HTTPError
	if errors.As(err, &httpErr) {
		return ClassifyHTTPError(httpErr.StatusCode)
	}
	var apiErr *zoom.APIError
	if errors.As(err, &apiErr) {
		return ClassifyHTTPError(apiErr.Status)
	}
	var coder StatusCoder
	if errors.As(err, &coder) {
		return ClassifyHTTPError(coder.HTTPStatus())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return ErrorTypeTimeout
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "unexpected eof") || strings.Contains(errMsg, "short download"):
		return ErrorTypeNetwork
	case strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "forbidden"):
		return ErrorTypeAuth
	}

	return ErrorTypeUnknown
}

// ClassifyHTTPError classifies HTTP status codes into error types
func ClassifyHTTPError(statusCode int) ErrorType {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorTypeAuth
	case statusCode == http.StatusRequestTimeout:
		return ErrorTypeTimeout
	case statusCode >= 400 && statusCode < 500:
		return ErrorTypeClient
	case statusCode >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeUnknown
	}
}

// RetryMetrics describes one Execute call
type RetryMetrics struct {
	TotalAttempts  int           `json:"total_attempts"`
	TotalDuration  time.Duration `json:"total_duration"`
	LastError      error         `json:"-"`
	LastErrorType  ErrorType     `json:"last_error_type"`
	SuccessAttempt int           `json:"success_attempt"` // 0 if every attempt failed
}

// RetryExecutor runs operations with retry logic. Execute is safe for
// concurrent use; each call reports its own metrics.
type RetryExecutor interface {
	Execute(ctx context.Context, operation func(ctx context.Context) error) (RetryMetrics, error)
}

type retryExecutor struct {
	strategy RetryStrategy
}

// NewRetryExecutor creates a new retry executor
func NewRetryExecutor(strategy RetryStrategy) RetryExecutor {
	return &retryExecutor{strategy: strategy}
}

func (re *retryExecutor) Execute(ctx context.Context, operation func(ctx context.Context) error) (metrics RetryMetrics, retErr error) {
	start := time.Now()
	defer func() {
		metrics.TotalDuration = time.Since(start)
	}()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			metrics.LastError = err
			metrics.LastErrorType = ClassifyError(err)
			return metrics, err
		}

		err := operation(ctx)
		metrics.TotalAttempts = attempt
		if err == nil {
			metrics.SuccessAttempt = attempt
			return metrics, nil
		}

		errorType := ClassifyError(err)
		metrics.LastError = err
		metrics.LastErrorType = errorType

		delay, shouldRetry := re.strategy.CalculateDelay(errorType, attempt)
		if !shouldRetry {
			return metrics, fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return metrics, ctx.Err()
		}
	}
}
