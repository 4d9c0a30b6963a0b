// Package logging provides structured logging functionality for zoom-transfer
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/curtbushko/zoom-transfer/internal/config"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type contextKey string

// RequestIDKey is the context key for request IDs
const RequestIDKey contextKey = "request_id"

// Logger defines the interface for logging operations
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})

	DebugWithContext(ctx context.Context, format string, args ...interface{})
	InfoWithContext(ctx context.Context, format string, args ...interface{})
	WarnWithContext(ctx context.Context, format string, args ...interface{})
	ErrorWithContext(ctx context.Context, format string, args ...interface{})

	// WithFields returns a child logger that adds the fields to every entry
	WithFields(fields map[string]interface{}) Logger

	LogTransferEvent(event string, meetingID string, metadata map[string]interface{})
	LogPerformance(metrics PerformanceMetrics)
	LogAPIRequest(request APIRequest)
	LogAPIResponse(response APIResponse)

	GetLevel() LogLevel
	SetLevel(level LogLevel)
	SetOutput(w io.Writer)
	Close() error
}

// PerformanceMetrics represents performance data for logging
type PerformanceMetrics struct {
	Operation      string
	Duration       time.Duration
	BytesProcessed int64
	Success        bool
	Error          string
	Metadata       map[string]interface{}
}

// APIRequest represents API request data for logging
type APIRequest struct {
	Method    string
	URL       string
	Headers   map[string]string
	Body      string
	RequestID string
}

// APIResponse represents API response data for logging
type APIResponse struct {
	StatusCode int
	Body       string
	RequestID  string
	Duration   time.Duration
	Success    bool
	Error      string
}

// loggerImpl implements the Logger interface on top of zerolog
type loggerImpl struct {
	mu         sync.RWMutex
	zl         zerolog.Logger
	level      LogLevel
	jsonFormat bool
}

// NewLogger creates a new Logger instance with the given configuration
func NewLogger(cfg config.LoggingConfig) (Logger, error) {
	level, err := parseLogLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	logger := &loggerImpl{
		level:      level,
		jsonFormat: cfg.JSONFormat,
	}
	logger.zl = logger.build(os.Stdout)

	return logger, nil
}

func (l *loggerImpl) build(w io.Writer) zerolog.Logger {
	if !l.jsonFormat {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(l.level.zerolog()).With().Timestamp().Logger()
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

func (l *loggerImpl) logger() *zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	zl := l.zl
	return &zl
}

func (l *loggerImpl) log(level LogLevel, ctx context.Context, format string, args ...interface{}) {
	event := l.logger().WithLevel(level.zerolog())
	if event == nil {
		return
	}
	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
			event = event.Str("request_id", requestID)
		}
	}
	event.Msgf(format, args...)
}

func (l *loggerImpl) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, nil, format, args...)
}

func (l *loggerImpl) Info(format string, args ...interface{}) {
	l.log(InfoLevel, nil, format, args...)
}

func (l *loggerImpl) Warn(format string, args ...interface{}) {
	l.log(WarnLevel, nil, format, args...)
}

func (l *loggerImpl) Error(format string, args ...interface{}) {
	l.log(ErrorLevel, nil, format, args...)
}

func (l *loggerImpl) DebugWithContext(ctx context.Context, format string, args ...interface{}) {
	l.log(DebugLevel, ctx, format, args...)
}

func (l *loggerImpl) InfoWithContext(ctx context.Context, format string, args ...interface{}) {
	l.log(InfoLevel, ctx, format, args...)
}

func (l *loggerImpl) WarnWithContext(ctx context.Context, format string, args ...interface{}) {
	l.log(WarnLevel, ctx, format, args...)
}

func (l *loggerImpl) ErrorWithContext(ctx context.Context, format string, args ...interface{}) {
	l.log(ErrorLevel, ctx, format, args...)
}

// WithFields returns a child logger carrying the given fields
func (l *loggerImpl) WithFields(fields map[string]interface{}) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &loggerImpl{
		zl:         l.zl.With().Fields(fields).Logger(),
		level:      l.level,
		jsonFormat: l.jsonFormat,
	}
}

// LogTransferEvent logs a pipeline milestone for a meeting
func (l *loggerImpl) LogTransferEvent(event string, meetingID string, metadata map[string]interface{}) {
	l.logger().Info().
		Str("event", event).
		Str("meeting_id", meetingID).
		Fields(metadata).
		Msgf("Transfer event: %s", event)
}

// LogPerformance logs performance metrics
func (l *loggerImpl) LogPerformance(metrics PerformanceMetrics) {
	event := l.logger().Info().
		Str("operation", metrics.Operation).
		Int64("duration_ms", metrics.Duration.Milliseconds()).
		Int64("bytes_processed", metrics.BytesProcessed).
		Bool("success", metrics.Success)
	if metrics.Error != "" {
		event = event.Str("error", metrics.Error)
	}
	event.Fields(metrics.Metadata).
		Msgf("Performance: %s completed in %v", metrics.Operation, metrics.Duration)
}

// LogAPIRequest logs API requests with sensitive headers redacted
func (l *loggerImpl) LogAPIRequest(request APIRequest) {
	event := l.logger().Debug().
		Str("method", request.Method).
		Str("url", request.URL).
		Str("request_id", request.RequestID)

	if len(request.Headers) > 0 {
		sanitized := make(map[string]string, len(request.Headers))
		for key, value := range request.Headers {
			if strings.EqualFold(key, "authorization") {
				sanitized[key] = "***"
			} else {
				sanitized[key] = value
			}
		}
		event = event.Interface("headers", sanitized)
	}
	if request.Body != "" {
		event = event.Str("body", truncate(request.Body))
	}

	event.Msgf("API Request: %s %s", request.Method, request.URL)
}

// LogAPIResponse logs API responses
func (l *loggerImpl) LogAPIResponse(response APIResponse) {
	event := l.logger().Debug().
		Int("status_code", response.StatusCode).
		Str("request_id", response.RequestID).
		Int64("duration_ms", response.Duration.Milliseconds()).
		Bool("success", response.Success)
	if response.Error != "" {
		event = event.Str("error", response.Error)
	}
	if response.Body != "" {
		event = event.Str("body", truncate(response.Body))
	}

	event.Msgf("API Response: %d (%v)", response.StatusCode, response.Duration)
}

func truncate(body string) string {
	if len(body) > 1000 {
		return body[:1000] + "... (truncated)"
	}
	return body
}

// GetLevel returns the current log level
func (l *loggerImpl) GetLevel() LogLevel {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// SetLevel sets the log level
func (l *loggerImpl) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// SetOutput sets the output writer (mainly for testing)
func (l *loggerImpl) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.zl = l.build(w)
}

// Close is a no-op; zerolog writes synchronously to its writer
func (l *loggerImpl) Close() error {
	return nil
}

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger
)

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// GetDefaultLogger returns the global default logger, or a no-op logger if none was set
func GetDefaultLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultLogger == nil {
		return Nop()
	}
	return defaultLogger
}

// InitializeLogging initializes the global logger with the provided configuration
func InitializeLogging(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}

	SetDefaultLogger(logger)
	return nil
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &loggerImpl{zl: zerolog.Nop(), level: ErrorLevel, jsonFormat: true}
}

// Package-level convenience functions that use the default logger

func Debug(format string, args ...interface{}) {
	GetDefaultLogger().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	GetDefaultLogger().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetDefaultLogger().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	GetDefaultLogger().Error(format, args...)
}

// WithRequestID creates a context with a request ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(RequestIDKey).(string)
	return requestID, ok
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return "req-" + uuid.NewString()
}
