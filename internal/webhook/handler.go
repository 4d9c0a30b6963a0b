// Package webhook serves the OAuth callback that triggers a meeting transfer.
//
// The caller (normally a browser following a link that carries the meeting id
// as state) receives exactly one response per request: a redirect to the Zoom
// consent page, or a plain-text message.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/transfer"
)

// MissingStateMessage is returned when the state parameter is absent
const MissingStateMessage = "Error: Missing state parameter, expected a Zoom meeting id"

// RequestIDHeader lets a caller supply its own request id
const RequestIDHeader = "X-Request-Id"

// Executor runs one transfer invocation
type Executor interface {
	Execute(ctx context.Context, requestID string, req transfer.Request, responder transfer.Responder) (*transfer.Result, error)
}

// Handler handles the OAuth callback
type Handler struct {
	executor Executor
	logger   logging.Logger
}

// NewHandler creates a callback handler
func NewHandler(executor Executor, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{executor: executor, logger: logger}
}

// NewMux mounts the callback at "/" and a liveness probe at "/healthz"
func NewMux(handler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", handler)
	return mux
}

// ServeHTTP runs a transfer for the meeting named by the state parameter
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	state := strings.TrimSpace(query.Get("state"))
	if state == "" {
		h.logger.Warn("Callback without state parameter from %s", r.RemoteAddr)
		http.Error(w, MissingStateMessage, http.StatusBadRequest)
		return
	}

	requestID := requestIDFrom(r)
	logger := h.logger.WithFields(map[string]interface{}{
		"meeting_id": state,
		"request_id": requestID,
	})
	responder := transfer.NewHTTPResponder(w, r)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("Panic while transferring meeting: %v\n%s", recovered, debug.Stack())
			h.fallback(logger, responder)
		}
	}()

	req := transfer.Request{State: state, Code: query.Get("code")}
	result, err := h.executor.Execute(r.Context(), requestID, req, responder)
	if err != nil {
		logger.Error("Transfer failed: %v", err)
	}
	if result != nil {
		if encoded, encErr := json.Marshal(result); encErr == nil {
			logger.Info("Transfer result: %s", encoded)
		}
	}

	if !responder.Sent() {
		h.fallback(logger, responder)
	}
}

func (h *Handler) fallback(logger logging.Logger, responder transfer.Responder) {
	if responder.Sent() {
		return
	}
	if err := responder.Message(transfer.FallbackMessage); err != nil {
		logger.Error("Fallback message was not sent: %v", err)
	}
}

// requestIDFrom prefers the caller's header, then the Lambda request id
func requestIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" {
		return id
	}
	if lc, ok := lambdacontext.FromContext(r.Context()); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return logging.GenerateRequestID()
}
