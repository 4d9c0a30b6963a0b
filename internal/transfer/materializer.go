package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/curtbushko/zoom-transfer/internal/download"
	"github.com/curtbushko/zoom-transfer/internal/filename"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// FileDownloader streams one recording file into w
type FileDownloader interface {
	DownloadRecordingFile(ctx context.Context, downloadURL string, w io.Writer) (int64, error)
}

// Materializer writes a meeting's metadata and recordings to local disk
type Materializer struct {
	concurrency int
	executor    download.RetryExecutor
	logger      logging.Logger
}

// NewMaterializer creates a materializer that downloads up to concurrency
// files at once, retrying each with executor
func NewMaterializer(concurrency int, executor download.RetryExecutor, logger logging.Logger) *Materializer {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Materializer{
		concurrency: concurrency,
		executor:    executor,
		logger:      logger,
	}
}

// WriteMetadata writes the raw recordings response, indented with four
// spaces, and returns the file name it used
func (m *Materializer) WriteMetadata(dir string, recordings *zoom.MeetingRecordings) (string, error) {
	name := filename.MetadataFileName(recordings.ID.String(), recordings.Topic)

	content, err := recordings.PrettyJSON()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	m.logger.Info("Meeting data written to %s", filepath.Join(dir, name))
	return name, nil
}

// Descriptors derives one descriptor per recording file, in provider order.
// A name already issued gets the lowest free numeric suffix so no two
// downloads share a file.
func Descriptors(recordings *zoom.MeetingRecordings) []VideoDescriptor {
	descriptors := make([]VideoDescriptor, 0, len(recordings.RecordingFiles))
	issued := make(map[string]bool, len(recordings.RecordingFiles))
	next := make(map[string]int, len(recordings.RecordingFiles))

	for _, file := range recordings.RecordingFiles {
		base := filename.VideoFileName(recordings.ID.String(), file.RecordingType, file.FileExtension)
		name := base
		if issued[name] {
			n := next[base]
			if n < 2 {
				n = 2
			}
			for name = withSuffix(base, n); issued[name]; name = withSuffix(base, n) {
				n++
			}
			next[base] = n + 1
		}
		issued[name] = true
		descriptors = append(descriptors, VideoDescriptor{
			LocalFileName: name,
			DownloadURL:   file.DownloadURL,
		})
	}

	return descriptors
}

func withSuffix(name string, n int) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
}

// MaterializeVideos downloads every recording file into dir. It returns once
// every download has finished; all failures are reported together.
func (m *Materializer) MaterializeVideos(ctx context.Context, downloader FileDownloader, dir string, recordings *zoom.MeetingRecordings) ([]VideoDescriptor, error) {
	descriptors := Descriptors(recordings)
	failures := make([]error, len(descriptors))

	var group errgroup.Group
	group.SetLimit(m.concurrency)

	for i, descriptor := range descriptors {
		group.Go(func() error {
			start := time.Now()
			path := filepath.Join(dir, descriptor.LocalFileName)

			m.logger.Info("Downloading meeting video: %s", descriptor.LocalFileName)
			result, err := download.ToFile(ctx, m.executor, path, func(ctx context.Context, w io.Writer) (int64, error) {
				return downloader.DownloadRecordingFile(ctx, descriptor.DownloadURL, w)
			})

			m.logger.LogPerformance(logging.PerformanceMetrics{
				Operation:      "download_recording",
				Duration:       time.Since(start),
				BytesProcessed: result.Bytes,
				Success:        err == nil,
				Error:          errorString(err),
				Metadata: map[string]interface{}{
					"file":     descriptor.LocalFileName,
					"attempts": result.Metrics.TotalAttempts,
				},
			})

			if err != nil {
				failures[i] = fmt.Errorf("failed to download %s: %w", descriptor.LocalFileName, err)
			}
			return nil
		})
	}
	_ = group.Wait()

	if err := errors.Join(failures...); err != nil {
		return nil, err
	}
	return descriptors, nil
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
