package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FetchFunc writes the remote content into w and returns the number of bytes written
type FetchFunc func(ctx context.Context, w io.Writer) (int64, error)

// FileResult describes a completed file download
type FileResult struct {
	Path    string
	Bytes   int64
	Metrics RetryMetrics
}

// ToFile downloads into path with retries. Every attempt starts again from
// byte zero so a failed partial stream never leaves stale bytes behind.
func ToFile(ctx context.Context, executor RetryExecutor, path string, fetch FetchFunc) (FileResult, error) {
	result := FileResult{Path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return result, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return result, fmt.Errorf("failed to create %s: %w", path, err)
	}

	metrics, err := executor.Execute(ctx, func(ctx context.Context) error {
		if err := file.Truncate(0); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", path, err)
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind %s: %w", path, err)
		}
		written, err := fetch(ctx, file)
		result.Bytes = written
		return err
	})
	result.Metrics = metrics

	if closeErr := file.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	if err != nil {
		return result, err
	}

	return result, nil
}
