package box

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestOAuth2Authenticator_RefreshRotatesToken(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		expected := map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": "refresh-1",
			"client_id":     "box-id",
			"client_secret": "box-secret",
		}
		for key, value := range expected {
			if got := r.PostForm.Get(key); got != value {
				t.Errorf("form %s = %q, want %q", key, got, value)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"access-1","refresh_token":"refresh-2","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer server.Close()

	auth := NewOAuth2Authenticator(Credentials{
		ClientID:     "box-id",
		ClientSecret: "box-secret",
		RefreshToken: "refresh-1",
	}, server.URL, server.Client())

	var rotated []string
	auth.SetRotationCallback(func(ctx context.Context, refreshToken string) error {
		rotated = append(rotated, refreshToken)
		return nil
	})

	for i := 0; i < 2; i++ {
		token, err := auth.AccessToken(context.Background())
		if err != nil {
			t.Fatalf("AccessToken() error = %v", err)
		}
		if token != "access-1" {
			t.Errorf("AccessToken() = %q, want access-1", token)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("token endpoint called %d times, want 1", calls.Load())
	}
	if len(rotated) != 1 || rotated[0] != "refresh-2" {
		t.Errorf("rotated tokens = %v, want [refresh-2]", rotated)
	}
}

func TestOAuth2Authenticator_RefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh token has expired"}`))
	}))
	defer server.Close()

	auth := NewOAuth2Authenticator(Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "stale"}, server.URL, server.Client())

	err := auth.RefreshToken(context.Background())
	var boxErr *BoxError
	if !errors.As(err, &boxErr) {
		t.Fatalf("RefreshToken() error = %v, want *BoxError", err)
	}
	if boxErr.StatusCode != http.StatusBadRequest || boxErr.Code != ErrorCodeInvalidGrant {
		t.Errorf("BoxError = %+v", boxErr)
	}
}

func TestOAuth2Authenticator_RotationStoreFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"a","refresh_token":"new","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer server.Close()

	auth := NewOAuth2Authenticator(Credentials{RefreshToken: "old"}, server.URL, server.Client())
	auth.SetRotationCallback(func(ctx context.Context, refreshToken string) error {
		return errors.New("ssm unavailable")
	})

	err := auth.RefreshToken(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ssm unavailable") {
		t.Errorf("RefreshToken() error = %v, want rotation failure", err)
	}
}

func TestOAuth2Authenticator_NoRefreshToken(t *testing.T) {
	auth := NewOAuth2Authenticator(Credentials{ClientID: "id"}, "http://127.0.0.1:0", nil)
	if _, err := auth.AccessToken(context.Background()); err == nil {
		t.Error("AccessToken() expected error without refresh token")
	}
}

type stubAuthenticator struct {
	tokens    []string
	current   int
	refreshes int
}

func (s *stubAuthenticator) AccessToken(ctx context.Context) (string, error) {
	return s.tokens[s.current], nil
}

func (s *stubAuthenticator) RefreshToken(ctx context.Context) error {
	s.refreshes++
	if s.current < len(s.tokens)-1 {
		s.current++
	}
	return nil
}

func TestAuthenticatedHTTPClient_ReplaysAfter401(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))

		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("User-Agent") != "zoom-transfer/1.0" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	auth := &stubAuthenticator{tokens: []string{"expired", "fresh"}}
	client := newAuthenticatedHTTPClient(auth, server.Client())

	req, err := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if auth.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", auth.refreshes)
	}
	if len(bodies) != 2 || bodies[0] != "payload" || bodies[1] != "payload" {
		t.Errorf("request bodies = %q, want payload twice", bodies)
	}
}
