// Package app wires configuration into a ready-to-serve transfer handler.
// Both the Lambda entry point and the local CLI build on it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/directory"
	"github.com/curtbushko/zoom-transfer/internal/download"
	"github.com/curtbushko/zoom-transfer/internal/hosts"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/storage"
	"github.com/curtbushko/zoom-transfer/internal/storage/box"
	"github.com/curtbushko/zoom-transfer/internal/transfer"
	"github.com/curtbushko/zoom-transfer/internal/webhook"
	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// tokenExchangeTimeout bounds the single, unretried token request
const tokenExchangeTimeout = 30 * time.Second

// Options carries dependencies the caller already has
type Options struct {
	// AWSConfig is used by the S3 destination; loaded from the environment when nil
	AWSConfig *aws.Config

	// OnBoxTokenRotation persists refresh tokens rotated by Box
	OnBoxTokenRotation box.RotationFunc

	// Destination overrides the configured provider
	Destination storage.Destination

	Logger logging.Logger
}

// App is a wired transfer service and its HTTP surface
type App struct {
	Handler     http.Handler
	Service     *transfer.Service
	Destination storage.Destination

	hosts hosts.Allowlist
}

// New builds the application from a validated configuration
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}

	destination := opts.Destination
	if destination == nil {
		var err error
		destination, err = storage.NewFromConfig(ctx, cfg.Destination, storage.Options{
			AWSConfig:          opts.AWSConfig,
			OnBoxTokenRotation: opts.OnBoxTokenRotation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s destination: %w", cfg.Destination.Provider, err)
		}
	}

	var allowlist hosts.Allowlist
	var policy transfer.HostPolicy
	if cfg.Hosts.File != "" {
		var err error
		allowlist, err = hosts.New(cfg.Hosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load host allowlist: %w", err)
		}
		policy = allowlist
		logger.Info("Host allowlist loaded from %s (%d hosts)", cfg.Hosts.File, allowlist.Stats().TotalHosts)
	}

	retryConfig := download.DefaultRetryConfig(cfg.Download.RetryAttempts)
	if err := download.ValidateRetryConfig(retryConfig); err != nil {
		return nil, fmt.Errorf("invalid retry configuration: %w", err)
	}
	executor := download.NewRetryExecutor(download.NewRetryStrategy(retryConfig))

	httpClient := zoom.NewRetryHTTPClient(zoom.HTTPClientConfigFromDownloadConfig(cfg.Download)).WithLogger(logger)
	downloadClient := zoom.NewRetryHTTPClient(zoom.DownloadHTTPClientConfig(cfg.Download)).WithLogger(logger)
	baseURL := cfg.Zoom.BaseURL

	orchestrator := transfer.NewOrchestrator(transfer.OrchestratorConfig{
		Auth: zoom.NewAuthCodeFlow(cfg.Zoom, &http.Client{Timeout: tokenExchangeTimeout}),
		NewClient: func(doer zoom.Doer) zoom.RecordingClient {
			return zoom.NewClient(doer, baseURL)
		},
		Directories: directory.NewDirectoryManager(directory.DirectoryConfig{
			BaseDirectory: cfg.Download.LocalDir,
			CreateDirs:    true,
		}),
		Materializer: transfer.NewMaterializer(cfg.Download.Concurrency, executor, logger),
		Hosts:        policy,
		Logger:       logger,
	})
	uploader := transfer.NewUploader(destination, cfg.Download.Concurrency, executor, logger)
	service := transfer.NewService(orchestrator, uploader, httpClient, logger).WithDownloadClient(downloadClient)

	logger.Info("Transfer service ready: destination=%s local_dir=%s concurrency=%d",
		destination.Name(), cfg.Download.LocalDir, cfg.Download.Concurrency)

	return &App{
		Handler:     webhook.NewMux(webhook.NewHandler(service, logger)),
		Service:     service,
		Destination: destination,
		hosts:       allowlist,
	}, nil
}

// Close stops the host allowlist watcher, if any
func (a *App) Close() error {
	if a.hosts == nil {
		return nil
	}
	return a.hosts.Close()
}
