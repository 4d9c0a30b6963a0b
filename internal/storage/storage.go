// Package storage defines the upload destination contract and picks the
// configured provider
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/storage/box"
	"github.com/curtbushko/zoom-transfer/internal/storage/dropbox"
	"github.com/curtbushko/zoom-transfer/internal/storage/s3store"
)

// Destination receives transfer artifacts
type Destination interface {
	// Name identifies the provider in logs and reports
	Name() string

	// Put stores size bytes read from content at path, replacing any
	// existing file at that path
	Put(ctx context.Context, path string, content io.Reader, size int64) error
}

// Options carries the collaborators a provider may need
type Options struct {
	HTTPClient *http.Client

	// AWSConfig is loaded from the environment when nil
	AWSConfig *aws.Config

	// OnBoxTokenRotation persists refresh tokens handed out by Box
	OnBoxTokenRotation box.RotationFunc
}

// ArtifactPath returns the destination path for a local artifact file name
func ArtifactPath(fileName string) string {
	return "/" + strings.TrimPrefix(fileName, "/")
}

// NewFromConfig constructs the destination selected by cfg.Provider
func NewFromConfig(ctx context.Context, cfg config.DestinationConfig, opts Options) (Destination, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderDropbox:
		return dropbox.NewFromConfig(cfg.Dropbox, httpClient), nil
	case config.ProviderBox:
		return box.NewFromConfig(cfg.Box, httpClient, opts.OnBoxTokenRotation), nil
	case config.ProviderS3:
		awsCfg := opts.AWSConfig
		if awsCfg == nil {
			loaded, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load AWS config: %w", err)
			}
			awsCfg = &loaded
		}
		return s3store.NewFromConfig(*awsCfg, cfg.S3), nil
	default:
		return nil, fmt.Errorf("unsupported destination provider %q", cfg.Provider)
	}
}
