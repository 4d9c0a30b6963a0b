package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtbushko/zoom-transfer/internal/config"
)

type discardDestination struct{}

func (discardDestination) Name() string { return "discard" }

func (discardDestination) Put(_ context.Context, _ string, r io.Reader, _ int64) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Zoom: config.ZoomConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "https://fn.test/callback",
			AuthURL:      "https://zoom.test/oauth/authorize",
			TokenURL:     "https://zoom.test/oauth/token",
			BaseURL:      "https://api.zoom.test/v2",
		},
		Destination: config.DestinationConfig{Provider: config.ProviderDropbox},
		Download: config.DownloadConfig{
			LocalDir:       t.TempDir(),
			RetryAttempts:  1,
			TimeoutSeconds: 10,
			Concurrency:    2,
		},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func TestNewServesCallbackAndHealth(t *testing.T) {
	application, err := New(context.Background(), testConfig(t), Options{Destination: discardDestination{}})
	require.NoError(t, err)
	defer application.Close()

	assert.Equal(t, "discard", application.Destination.Name())

	health := httptest.NewRecorder()
	application.Handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, health.Code)

	callback := httptest.NewRecorder()
	application.Handler.ServeHTTP(callback, httptest.NewRequest(http.MethodGet, "/?state=m123", nil))
	require.Equal(t, http.StatusFound, callback.Code)

	location, err := url.Parse(callback.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "zoom.test", location.Host)
	assert.Equal(t, "m123", location.Query().Get("state"))
	assert.Equal(t, "client", location.Query().Get("client_id"))
	assert.Equal(t, "https://fn.test/callback", location.Query().Get("redirect_uri"))
	assert.Equal(t, "code", location.Query().Get("response_type"))
}

func TestNewBuildsConfiguredDestination(t *testing.T) {
	cfg := testConfig(t)
	cfg.Destination.Dropbox = config.DropboxConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"}

	application, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer application.Close()

	assert.Equal(t, "dropbox", application.Destination.Name())
}

func TestNewLoadsHostAllowlist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hosts.File = filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(cfg.Hosts.File, []byte("a@b.com\n"), 0o644))

	application, err := New(context.Background(), cfg, Options{Destination: discardDestination{}})
	require.NoError(t, err)
	require.NotNil(t, application.hosts)
	assert.True(t, application.hosts.IsAllowed("A@B.com"))
	assert.NoError(t, application.Close())
}

func TestNewRejectsMissingAllowlist(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hosts.File = filepath.Join(t.TempDir(), "missing.txt")

	_, err := New(context.Background(), cfg, Options{Destination: discardDestination{}})
	assert.Error(t, err)
}

func TestFailingDownloadIsAttemptedRetryAttemptsPlusOneTimes(t *testing.T) {
	var downloads, fetches atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v2/meetings/m1/recordings", func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"m1","topic":"Standup","host_email":"a@b.com","recording_files":[{"recording_type":"shared_screen","file_extension":"mp4","download_url":"http://%s/rec/1"}]}`, r.Host)
	})
	mux.HandleFunc("/rec/1", func(w http.ResponseWriter, r *http.Request) {
		downloads.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(t)
	cfg.Zoom.TokenURL = server.URL + "/oauth/token"
	cfg.Zoom.BaseURL = server.URL + "/v2"
	cfg.Download.RetryAttempts = 2

	application, err := New(context.Background(), cfg, Options{Destination: discardDestination{}})
	require.NoError(t, err)
	defer application.Close()

	recorder := httptest.NewRecorder()
	application.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/?state=m1&code=abc", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, int32(3), downloads.Load())
}
