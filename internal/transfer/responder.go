package transfer

import (
	"net/http"
	"sync/atomic"

	"github.com/curtbushko/zoom-transfer/internal/logging"
)

// Caller-visible messages
const (
	AcknowledgmentMessage = "Zoom successfully authenticated. Now executing zoom meeting download"
	MissingTokenMessage   = "Error: No access token returned from zoom access token endpoint"
	TokenFailureMessage   = "Error: Zoom access token request failed, check logs"
	FallbackMessage       = "Error: Uncaught error occurred, check logs"
)

// Responder delivers the single response of an invocation: a redirect or a
// plain-text message. Every call after the first returns ErrAlreadyResponded
// and sends nothing.
type Responder interface {
	Redirect(url string) error
	Message(text string) error
	Sent() bool
}

// HTTPResponder writes the response to an http.ResponseWriter
type HTTPResponder struct {
	w    http.ResponseWriter
	r    *http.Request
	sent atomic.Bool
}

// NewHTTPResponder wraps w for the request r
func NewHTTPResponder(w http.ResponseWriter, r *http.Request) *HTTPResponder {
	return &HTTPResponder{w: w, r: r}
}

// Redirect sends a 302 to url
func (h *HTTPResponder) Redirect(url string) error {
	if !h.claim("redirect") {
		return ErrAlreadyResponded
	}
	http.Redirect(h.w, h.r, url, http.StatusFound)
	return nil
}

// Message sends text as a plain-text 200 response
func (h *HTTPResponder) Message(text string) error {
	if !h.claim("message") {
		return ErrAlreadyResponded
	}
	h.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	h.w.WriteHeader(http.StatusOK)
	_, err := h.w.Write([]byte(text))
	if flusher, ok := h.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return err
}

// Sent reports whether a response went out
func (h *HTTPResponder) Sent() bool {
	return h.sent.Load()
}

func (h *HTTPResponder) claim(kind string) bool {
	if h.sent.CompareAndSwap(false, true) {
		return true
	}
	logging.Error("Attempted to send a second response (%s); ignoring", kind)
	return false
}
