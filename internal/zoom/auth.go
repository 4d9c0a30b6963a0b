// Package zoom provides Zoom OAuth and Cloud Recording client functionality
package zoom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/curtbushko/zoom-transfer/internal/config"
)

// ErrMissingAccessToken is returned when the token endpoint answers without an access token
var ErrMissingAccessToken = errors.New("no access token returned from zoom access token endpoint")

// oauth2MissingToken is how golang.org/x/oauth2 reports a 2xx token response
// without an access_token; it exports no sentinel for it
const oauth2MissingToken = "server response missing access_token"

// AccessToken represents an OAuth access token with metadata
type AccessToken struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Scopes       []string
	ExpiresAt    time.Time
}

// IsExpired returns true if the token is expired or will expire within the buffer time.
// A token without a known expiry is never considered expired.
func (t *AccessToken) IsExpired(buffer time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(buffer).After(t.ExpiresAt)
}

// AuthError represents authentication-related errors
type AuthError struct {
	Type   string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error %s: %s (%v)", e.Type, e.Reason, e.Err)
	}
	return fmt.Sprintf("auth error %s: %s", e.Type, e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthCodeFlow implements the OAuth authorization code grant against Zoom
type AuthCodeFlow struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewAuthCodeFlow creates the authorization code flow for a Zoom OAuth app.
// httpClient carries the timeout used for the token exchange.
func NewAuthCodeFlow(cfg config.ZoomConfig, httpClient *http.Client) *AuthCodeFlow {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &AuthCodeFlow{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient: httpClient,
	}
}

// ConsentURL returns the URL the caller is redirected to for consent. state
// comes back unchanged on the callback.
func (f *AuthCodeFlow) ConsentURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token. It is never retried:
// authorization codes are single use.
func (f *AuthCodeFlow) Exchange(ctx context.Context, code string) (*AccessToken, error) {
	if code == "" {
		return nil, &AuthError{
			Type:   "invalid_request",
			Reason: "authorization code is empty",
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	tok, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		switch {
		case errors.As(err, &retrieveErr):
			reason := strings.TrimSpace(string(retrieveErr.Body))
			if retrieveErr.Response != nil {
				reason = fmt.Sprintf("HTTP %d: %s", retrieveErr.Response.StatusCode, reason)
			}
			return nil, &AuthError{
				Type:   "token_rejected",
				Reason: reason,
				Err:    err,
			}
		case strings.Contains(err.Error(), oauth2MissingToken):
			return nil, &AuthError{
				Type:   "missing_access_token",
				Reason: "token response did not include an access token",
				Err:    fmt.Errorf("%w: %v", ErrMissingAccessToken, err),
			}
		default:
			return nil, &AuthError{
				Type:   "request_failed",
				Reason: "failed to exchange authorization code",
				Err:    err,
			}
		}
	}

	if tok.AccessToken == "" {
		return nil, &AuthError{
			Type:   "missing_access_token",
			Reason: "token response did not include an access token",
			Err:    ErrMissingAccessToken,
		}
	}

	token := &AccessToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		token.Scopes = strings.Fields(scope)
	}
	if token.ExpiresAt.IsZero() {
		token.ExpiresAt = expiryFromClaims(token.AccessToken)
	}

	return token, nil
}

// expiryFromClaims reads the exp claim of a JWT access token without
// verifying it. Zoom issues JWT access tokens; opaque tokens yield a zero time.
func expiryFromClaims(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
