package zoom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

type serverResponse struct {
	statusCode int
	body       string
	headers    map[string]string
}

func scriptedServer(t *testing.T, responses []serverResponse, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(responses) {
			t.Errorf("Unexpected call %d", n+1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := responses[n]
		for key, value := range resp.headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.statusCode)
		fmt.Fprint(w, resp.body)
	}))
}

func fastRetryConfig(maxRetries int) HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:      5 * time.Second,
		MaxRetries:   maxRetries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}
}

func TestRetryHTTPClient(t *testing.T) {
	tests := []struct {
		name            string
		method          string
		maxRetries      int
		serverResponses []serverResponse
		expectedError   bool
		expectedCalls   int
	}{
		{
			name:       "successful request on first try",
			method:     http.MethodGet,
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 200, body: `{"success": true}`},
			},
			expectedCalls: 1,
		},
		{
			name:       "success after transient failures",
			method:     http.MethodGet,
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 500, body: `{"error": "server_error"}`},
				{statusCode: 502, body: `{"error": "bad_gateway"}`},
				{statusCode: 200, body: `{"success": true}`},
			},
			expectedCalls: 3,
		},
		{
			name:       "max retries exceeded",
			method:     http.MethodGet,
			maxRetries: 2,
			serverResponses: []serverResponse{
				{statusCode: 500},
				{statusCode: 500},
				{statusCode: 500},
			},
			expectedError: true,
			expectedCalls: 3,
		},
		{
			name:       "no retry for client errors",
			method:     http.MethodGet,
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 404, body: `{"code": 3301, "message": "This recording does not exist."}`},
			},
			expectedError: true,
			expectedCalls: 1,
		},
		{
			name:       "retry for rate limits",
			method:     http.MethodGet,
			maxRetries: 2,
			serverResponses: []serverResponse{
				{statusCode: 429, headers: map[string]string{"Retry-After": "0"}},
				{statusCode: 200, body: `{}`},
			},
			expectedCalls: 2,
		},
		{
			name:       "post is never retried",
			method:     http.MethodPost,
			maxRetries: 3,
			serverResponses: []serverResponse{
				{statusCode: 503},
			},
			expectedError: true,
			expectedCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := scriptedServer(t, tt.serverResponses, &calls)
			defer server.Close()

			client := NewRetryHTTPClient(fastRetryConfig(tt.maxRetries))
			req, err := http.NewRequestWithContext(context.Background(), tt.method, server.URL, nil)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}

			resp, err := client.Do(req)
			if resp != nil {
				resp.Body.Close()
			}

			if tt.expectedError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectedError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if got := int(calls.Load()); got != tt.expectedCalls {
				t.Errorf("Expected %d calls, got %d", tt.expectedCalls, got)
			}
		})
	}
}

func TestRetryHTTPClientErrorTypes(t *testing.T) {
	tests := []struct {
		name     string
		response serverResponse
		check    func(t *testing.T, err error)
	}{
		{
			name:     "zoom api error body",
			response: serverResponse{statusCode: 404, body: `{"code": 3301, "message": "This recording does not exist."}`},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				if !errors.As(err, &apiErr) {
					t.Fatalf("Expected APIError, got %T", err)
				}
				if apiErr.Code != 3301 || apiErr.Status != 404 {
					t.Errorf("Unexpected APIError: %+v", apiErr)
				}
			},
		},
		{
			name:     "plain http error",
			response: serverResponse{statusCode: 403, body: "forbidden"},
			check: func(t *testing.T, err error) {
				var httpErr *HTTPError
				if !errors.As(err, &httpErr) {
					t.Fatalf("Expected HTTPError, got %T", err)
				}
				if httpErr.StatusCode != 403 || httpErr.Body != "forbidden" {
					t.Errorf("Unexpected HTTPError: %+v", httpErr)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := scriptedServer(t, []serverResponse{tt.response}, &calls)
			defer server.Close()

			client := NewRetryHTTPClient(fastRetryConfig(0))
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			_, err := client.Do(req)
			tt.check(t, err)
		})
	}
}

func TestRetryHTTPClientHonorsContext(t *testing.T) {
	var calls atomic.Int32
	server := scriptedServer(t, []serverResponse{
		{statusCode: 503, headers: map[string]string{"Retry-After": "30"}},
	}, &calls)
	defer server.Close()

	cfg := fastRetryConfig(3)
	cfg.RetryWaitMax = time.Minute
	client := NewRetryHTTPClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	start := time.Now()
	_, err := client.Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Retry wait ignored cancellation, took %v", elapsed)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected a single call before cancellation, got %d", got)
	}
}

func TestRetryHTTPClientRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastRetryConfig(0)
	cfg.RequestsPerSecond = 20
	client := NewRetryHTTPClient(cfg)

	start := time.Now()
	for i := 0; i < 30; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		resp.Body.Close()
	}

	// 20 burst tokens, then 10 more at 20/s
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("Expected rate limiting to slow requests, took %v", elapsed)
	}
	if got := calls.Load(); got != 30 {
		t.Errorf("Expected 30 calls, got %d", got)
	}
}

func TestHTTPClientConfigFromDownloadConfig(t *testing.T) {
	cfg := HTTPClientConfigFromDownloadConfig(config.DownloadConfig{
		RetryAttempts:     4,
		TimeoutSeconds:    60,
		RequestsPerSecond: 2.5,
	})

	if cfg.MaxRetries != 4 {
		t.Errorf("Expected 4 retries, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("Expected 1m timeout, got %v", cfg.Timeout)
	}
	if cfg.RequestsPerSecond != 2.5 {
		t.Errorf("Expected 2.5 rps, got %v", cfg.RequestsPerSecond)
	}
}

func TestDownloadHTTPClientConfigDoesNotRetry(t *testing.T) {
	cfg := DownloadHTTPClientConfig(config.DownloadConfig{
		RetryAttempts:  4,
		TimeoutSeconds: 60,
	})

	if cfg.MaxRetries != 0 {
		t.Errorf("Expected no retries, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout != time.Minute {
		t.Errorf("Expected 1m timeout, got %v", cfg.Timeout)
	}
}

func TestBearerClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("Authorization"))
	}))
	defer server.Close()

	client := NewBearerClient(NewRetryHTTPClient(fastRetryConfig(0)), &AccessToken{AccessToken: "tok"})
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Bearer tok" {
		t.Errorf("Expected bearer header, got %q", body)
	}
}

func TestBearerClientRefusesExpiringToken(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		wantErr   bool
	}{
		{name: "unknown expiry", expiresAt: time.Time{}, wantErr: false},
		{name: "valid for an hour", expiresAt: time.Now().Add(time.Hour), wantErr: false},
		{name: "expires within buffer", expiresAt: time.Now().Add(30 * time.Second), wantErr: true},
		{name: "already expired", expiresAt: time.Now().Add(-time.Minute), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
			}))
			defer server.Close()

			client := NewBearerClient(NewRetryHTTPClient(fastRetryConfig(0)), &AccessToken{AccessToken: "tok", ExpiresAt: tt.expiresAt})
			req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
			resp, err := client.Do(req)
			if resp != nil {
				resp.Body.Close()
			}

			if tt.wantErr {
				if !errors.Is(err, ErrTokenExpired) {
					t.Fatalf("Expected ErrTokenExpired, got %v", err)
				}
				if calls.Load() != 0 {
					t.Errorf("Expected no request to be sent, got %d", calls.Load())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if calls.Load() != 1 {
				t.Errorf("Expected 1 request, got %d", calls.Load())
			}
		})
	}
}

func TestRetryHTTPClientLogsRequestsWithoutToken(t *testing.T) {
	var calls atomic.Int32
	server := scriptedServer(t, []serverResponse{
		{statusCode: http.StatusServiceUnavailable},
		{statusCode: http.StatusOK, body: "{}"},
	}, &calls)
	defer server.Close()

	logger, err := logging.NewLogger(config.LoggingConfig{Level: "debug", JSONFormat: true})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	var buffer bytes.Buffer
	logger.SetOutput(&buffer)

	client := NewBearerClient(NewRetryHTTPClient(fastRetryConfig(1)).WithLogger(logger), &AccessToken{AccessToken: "secret-token"})
	ctx := logging.WithRequestID(context.Background(), "req-42")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/meetings/m1/recordings", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	resp.Body.Close()

	output := buffer.String()
	if strings.Contains(output, "secret-token") {
		t.Errorf("Access token leaked into log output: %s", output)
	}
	if got := strings.Count(output, "API Request: GET"); got != 2 {
		t.Errorf("Expected 2 logged requests, got %d in %s", got, output)
	}
	for _, want := range []string{"API Response: 503", "API Response: 200", `"request_id":"req-42"`, `"Authorization":"***"`} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected log output to contain %s, got %s", want, output)
		}
	}
}

func TestEscapeMeetingID(t *testing.T) {
	tests := []struct {
		id       string
		expected string
	}{
		{id: "85746065432", expected: "85746065432"},
		{id: "m123", expected: "m123"},
		{id: "abc+def==", expected: "abc+def=="},
		{id: "/ajXp112QmuoKj4854875==", expected: "%252FajXp112QmuoKj4854875=="},
		{id: "ab//cd", expected: "ab%252F%252Fcd"},
		{id: "a b", expected: "a%20b"},
	}

	for _, tt := range tests {
		if got := escapeMeetingID(tt.id); got != tt.expected {
			t.Errorf("escapeMeetingID(%q) = %q, want %q", tt.id, got, tt.expected)
		}
		if strings.Contains(escapeMeetingID(tt.id), "/") {
			t.Errorf("escaped id %q still contains a slash", tt.id)
		}
	}
}
