package transfer

import (
	"sync"
	"time"

	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// Session is the state of one invocation. It is created per request and
// never shared.
type Session struct {
	RequestID string
	MeetingID string

	httpClient     zoom.Doer
	downloadClient zoom.Doer
	result         *Result

	mu    sync.RWMutex
	token *zoom.AccessToken
}

// NewSession creates a session for meetingID that issues Zoom calls through httpClient
func NewSession(requestID, meetingID string, httpClient zoom.Doer) *Session {
	return &Session{
		RequestID:      requestID,
		MeetingID:      meetingID,
		httpClient:     httpClient,
		downloadClient: httpClient,
		result:         &Result{},
	}
}

// Result returns the result accumulated by this session
func (s *Session) Result() *Result {
	return s.result
}

// SetToken stores the access token. It can be set only once.
func (s *Session) SetToken(token *zoom.AccessToken) error {
	if token == nil || token.AccessToken == "" {
		return ErrNotAuthorized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil {
		return ErrTokenAlreadySet
	}
	stored := *token
	s.token = &stored
	return nil
}

// Authorized reports whether the session holds an access token
func (s *Session) Authorized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil
}

// TokenExpiresAt returns the expiry of the access token, zero when unknown
func (s *Session) TokenExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return time.Time{}
	}
	return s.token.ExpiresAt
}

// TokenExpired reports whether the access token expires within buffer
func (s *Session) TokenExpired(buffer time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && s.token.IsExpired(buffer)
}

// AuthorizedClient returns a Doer for API calls that adds the session's bearer token
func (s *Session) AuthorizedClient() (zoom.Doer, error) {
	return s.authorized(s.httpClient)
}

// AuthorizedDownloadClient returns a Doer for recording downloads that adds
// the session's bearer token
func (s *Session) AuthorizedDownloadClient() (zoom.Doer, error) {
	return s.authorized(s.downloadClient)
}

func (s *Session) authorized(next zoom.Doer) (zoom.Doer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil {
		return nil, ErrNotAuthorized
	}
	return zoom.NewBearerClient(next, s.token), nil
}
