package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curtbushko/zoom-transfer/internal/config"
)

type memorySSM struct {
	values map[string]string
}

func (m *memorySSM) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	value, ok := m.values[aws.ToString(params.Name)]
	if !ok {
		return nil, &types.ParameterNotFound{Message: aws.String("not found")}
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: params.Name, Value: aws.String(value)}}, nil
}

func (m *memorySSM) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.values[aws.ToString(params.Name)] = aws.ToString(params.Value)
	return &ssm.PutParameterOutput{}, nil
}

func lambdaConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Zoom: config.ZoomConfig{
			ClientID:    "zoom-client",
			RedirectURL: "https://fn.test/callback",
			AuthURL:     "https://zoom.test/oauth/authorize",
			TokenURL:    "https://zoom.test/oauth/token",
			BaseURL:     "https://api.zoom.test/v2",
		},
		Destination: config.DestinationConfig{
			Provider: config.ProviderDropbox,
			Dropbox:  config.DropboxConfig{ClientID: "dbx-client"},
		},
		Download: config.DownloadConfig{
			LocalDir:       t.TempDir(),
			RetryAttempts:  1,
			TimeoutSeconds: 30,
			Concurrency:    1,
		},
		Logging: config.LoggingConfig{Level: "info"},
		Secrets: config.SecretsConfig{SSMPrefix: "/zoom-transfer/test"},
	}
}

func TestBuildHandlerResolvesSecrets(t *testing.T) {
	params := &memorySSM{values: map[string]string{
		"/zoom-transfer/test/zoom-client-secret":    "zoom-secret",
		"/zoom-transfer/test/dropbox-client-secret": "dbx-secret",
		"/zoom-transfer/test/dropbox-refresh-token": "dbx-refresh",
	}}
	cfg := lambdaConfig(t)

	handler, err := buildHandler(context.Background(), cfg, aws.Config{Region: "us-east-1"}, params)
	require.NoError(t, err)

	assert.Equal(t, "zoom-secret", cfg.Zoom.ClientSecret)
	assert.Equal(t, "dbx-refresh", cfg.Destination.Dropbox.RefreshToken)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBuildHandlerFailsOnMissingSecret(t *testing.T) {
	params := &memorySSM{values: map[string]string{
		"/zoom-transfer/test/zoom-client-secret": "zoom-secret",
	}}

	_, err := buildHandler(context.Background(), lambdaConfig(t), aws.Config{Region: "us-east-1"}, params)
	assert.Error(t, err)
}

func TestBuildHandlerValidatesWithoutSSM(t *testing.T) {
	cfg := lambdaConfig(t)
	cfg.Secrets.SSMPrefix = ""

	_, err := buildHandler(context.Background(), cfg, aws.Config{Region: "us-east-1"}, &memorySSM{values: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zoom.client_secret is required")
}
