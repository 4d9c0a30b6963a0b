// Package s3store uploads transfer artifacts to an S3 bucket
package s3store

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

// PutObjectAPI is the subset of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Destination writes artifacts as objects under a key prefix
type Destination struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// New creates an S3 destination
func New(client PutObjectAPI, cfg config.S3Config) *Destination {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Destination{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}
}

// NewFromConfig creates an S3 destination from an AWS SDK configuration
func NewFromConfig(awsCfg aws.Config, cfg config.S3Config) *Destination {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		}
	})
	return New(client, cfg)
}

// Name returns the provider name
func (d *Destination) Name() string {
	return config.ProviderS3
}

// Key returns the object key for a destination path
func (d *Destination) Key(filePath string) string {
	return d.prefix + strings.TrimPrefix(filePath, "/")
}

// Put uploads content as one object, replacing any existing object
func (d *Destination) Put(ctx context.Context, filePath string, content io.Reader, size int64) error {
	if strings.Trim(filePath, "/") == "" {
		return fmt.Errorf("invalid destination path %q", filePath)
	}

	key := d.Key(filePath)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(key),
		Body:          content,
		ContentLength: aws.Int64(size),
	}
	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := d.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", d.bucket, key, err)
	}

	logging.Debug("Uploaded s3://%s/%s (%d bytes)", d.bucket, key, size)
	return nil
}
