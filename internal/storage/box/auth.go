package box

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// Credentials are the Box OAuth 2.0 app credentials plus a refresh token
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Authenticator supplies access tokens for Box API calls
type Authenticator interface {
	// AccessToken returns a valid access token, refreshing when needed
	AccessToken(ctx context.Context) (string, error)

	// RefreshToken forces a token refresh
	RefreshToken(ctx context.Context) error
}

// RotationFunc is called with the new refresh token whenever Box rotates it.
// Box refresh tokens are single use, so the new value must be persisted.
type RotationFunc func(ctx context.Context, refreshToken string) error

// OAuth2Authenticator implements the refresh token grant for Box
type OAuth2Authenticator struct {
	mu         sync.Mutex
	oauth      *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	onRotate   RotationFunc
}

// NewOAuth2Authenticator creates a new OAuth 2.0 authenticator for Box
func NewOAuth2Authenticator(creds Credentials, tokenURL string, httpClient *http.Client) *OAuth2Authenticator {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	if tokenURL == "" {
		tokenURL = TokenURL
	}

	return &OAuth2Authenticator{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		token:      &oauth2.Token{RefreshToken: creds.RefreshToken},
		httpClient: httpClient,
	}
}

// SetRotationCallback sets the function that persists rotated refresh tokens
func (a *OAuth2Authenticator) SetRotationCallback(fn RotationFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onRotate = fn
}

// AccessToken returns the current access token, refreshing it if it is missing or expired
func (a *OAuth2Authenticator) AccessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token.Valid() {
		return a.token.AccessToken, nil
	}
	if err := a.refreshLocked(ctx); err != nil {
		return "", err
	}
	return a.token.AccessToken, nil
}

// RefreshToken refreshes the access token using the refresh token
func (a *OAuth2Authenticator) RefreshToken(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshLocked(ctx)
}

func (a *OAuth2Authenticator) refreshLocked(ctx context.Context) error {
	if a.token.RefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	previous := a.token.RefreshToken

	tok, err := a.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: previous}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return &BoxError{
				StatusCode: retrieveErr.Response.StatusCode,
				Code:       retrieveErr.ErrorCode,
				Message:    retrieveErr.ErrorDescription,
			}
		}
		return fmt.Errorf("token refresh request failed: %w", err)
	}

	a.token = tok
	if tok.RefreshToken != "" && tok.RefreshToken != previous && a.onRotate != nil {
		if err := a.onRotate(ctx, tok.RefreshToken); err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
	}

	return nil
}

// authenticatedHTTPClient adds the bearer token and retries once after a 401
type authenticatedHTTPClient struct {
	authenticator Authenticator
	httpClient    *http.Client
}

func newAuthenticatedHTTPClient(auth Authenticator, httpClient *http.Client) *authenticatedHTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &authenticatedHTTPClient{
		authenticator: auth,
		httpClient:    httpClient,
	}
}

// Do performs an HTTP request with automatic token refresh
func (c *authenticatedHTTPClient) Do(req *http.Request) (*http.Response, error) {
	accessToken, err := c.authenticator.AccessToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", "zoom-transfer/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The body has been consumed; only replay requests that can rebuild it
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.authenticator.RefreshToken(req.Context()); err != nil {
		return nil, fmt.Errorf("failed to refresh token after 401: %w", err)
	}
	accessToken, err = c.authenticator.AccessToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+accessToken)

	return c.httpClient.Do(retry)
}
