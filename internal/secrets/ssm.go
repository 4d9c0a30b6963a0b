// Package secrets resolves credentials from AWS SSM Parameter Store
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

// Parameter names, relative to the configured prefix
const (
	ZoomClientSecret    = "zoom-client-secret"
	DropboxClientSecret = "dropbox-client-secret"
	DropboxRefreshToken = "dropbox-refresh-token"
	BoxClientSecret     = "box-client-secret"
	BoxRefreshToken     = "box-refresh-token"
)

// ErrNotFound is returned when a parameter does not exist
var ErrNotFound = errors.New("parameter not found")

// ParameterAPI is the subset of the SSM client used here
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// Store reads and writes parameters under a common prefix
type Store struct {
	client ParameterAPI
	prefix string
}

// NewStore creates a parameter store rooted at prefix
func NewStore(client ParameterAPI, prefix string) *Store {
	return &Store{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// Path returns the full parameter name for name
func (s *Store) Path(name string) string {
	return s.prefix + "/" + name
}

// Get reads and decrypts a parameter
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	path := s.Path(name)
	start := time.Now()

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read parameter %s: %w", path, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%s: %w", path, ErrNotFound)
	}

	logging.Debug("Loaded parameter %s from SSM in %v", path, time.Since(start))
	return *out.Parameter.Value, nil
}

// Put stores value as a SecureString, overwriting any existing value
func (s *Store) Put(ctx context.Context, name, value string) error {
	path := s.Path(name)
	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to store parameter %s: %w", path, err)
	}
	return nil
}

type secretField struct {
	name  string
	field *string
}

// Resolve fills every empty secret the configured destination needs from SSM.
// Values already present in cfg are left alone.
func (s *Store) Resolve(ctx context.Context, cfg *config.Config) error {
	targets := []secretField{
		{ZoomClientSecret, &cfg.Zoom.ClientSecret},
	}

	switch cfg.Destination.Provider {
	case config.ProviderDropbox:
		targets = append(targets,
			secretField{DropboxClientSecret, &cfg.Destination.Dropbox.ClientSecret},
			secretField{DropboxRefreshToken, &cfg.Destination.Dropbox.RefreshToken},
		)
	case config.ProviderBox:
		targets = append(targets,
			secretField{BoxClientSecret, &cfg.Destination.Box.ClientSecret},
			secretField{BoxRefreshToken, &cfg.Destination.Box.RefreshToken},
		)
	}

	for _, target := range targets {
		if *target.field != "" {
			continue
		}
		value, err := s.Get(ctx, target.name)
		if err != nil {
			return err
		}
		*target.field = value
	}

	return nil
}
