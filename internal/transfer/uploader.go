package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/curtbushko/zoom-transfer/internal/download"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/storage"
	"github.com/curtbushko/zoom-transfer/internal/tracking"
)

// Uploader pushes materialized artifacts to a destination
type Uploader struct {
	destination storage.Destination
	concurrency int
	executor    download.RetryExecutor
	logger      logging.Logger
}

// NewUploader creates an uploader that sends up to concurrency videos at once
func NewUploader(destination storage.Destination, concurrency int, executor download.RetryExecutor, logger logging.Logger) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Uploader{
		destination: destination,
		concurrency: concurrency,
		executor:    executor,
		logger:      logger,
	}
}

// uploadState collects per-artifact outcomes from concurrent uploads
type uploadState struct {
	mu       sync.Mutex
	uploaded map[string]bool
	failed   []string
}

func (s *uploadState) markUploaded(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded[name] = true
}

func (s *uploadState) markFailed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, name)
}

// Upload sends every video and then the metadata file named in result. The
// metadata goes last and only after every video was stored. Any failure stops
// the stage and is returned as an *UploadError.
func (u *Uploader) Upload(ctx context.Context, result *Result, tracker tracking.CSVTracker) error {
	if tracker == nil {
		tracker = tracking.NopTracker{}
	}
	state := &uploadState{uploaded: make(map[string]bool)}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(u.concurrency)

	for _, video := range result.MeetingVideos {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				u.track(tracker, video.LocalFileName, 0, 0, tracking.StatusSkipped, nil)
				return nil
			}
			if err := u.uploadArtifact(groupCtx, result.LocalFilePath, video.LocalFileName, tracker); err != nil {
				state.markFailed(video.LocalFileName)
				return err
			}
			state.markUploaded(video.LocalFileName)
			return nil
		})
	}

	err := group.Wait()
	if err == nil && result.MeetingResponseFileName != "" {
		if err = u.uploadArtifact(ctx, result.LocalFilePath, result.MeetingResponseFileName, tracker); err != nil {
			state.markFailed(result.MeetingResponseFileName)
		} else {
			state.markUploaded(result.MeetingResponseFileName)
		}
	} else if err != nil && result.MeetingResponseFileName != "" {
		u.track(tracker, result.MeetingResponseFileName, 0, 0, tracking.StatusSkipped, nil)
	}

	var uploaded []string
	for _, name := range result.Artifacts() {
		if state.uploaded[name] {
			uploaded = append(uploaded, name)
		}
	}
	result.UploadedArtifacts = uploaded

	if err != nil {
		return &UploadError{Uploaded: uploaded, Failed: state.failed, Err: err}
	}
	return nil
}

func (u *Uploader) uploadArtifact(ctx context.Context, dir, name string, tracker tracking.CSVTracker) error {
	start := time.Now()
	var size int64

	metrics, err := u.executor.Execute(ctx, func(ctx context.Context) error {
		file, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", name, err)
		}
		size = info.Size()

		return u.destination.Put(ctx, storage.ArtifactPath(name), file, size)
	})

	status := tracking.StatusUploaded
	if err != nil {
		status = tracking.StatusFailed
	}
	u.track(tracker, name, size, time.Since(start), status, err)

	u.logger.LogPerformance(logging.PerformanceMetrics{
		Operation:      "upload_artifact",
		Duration:       time.Since(start),
		BytesProcessed: size,
		Success:        err == nil,
		Error:          errorString(err),
		Metadata: map[string]interface{}{
			"file":        name,
			"destination": u.destination.Name(),
			"attempts":    metrics.TotalAttempts,
		},
	})

	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", name, u.destination.Name(), err)
	}
	u.logger.Info("Uploaded %s to %s", name, u.destination.Name())
	return nil
}

func (u *Uploader) track(tracker tracking.CSVTracker, name string, size int64, duration time.Duration, status string, err error) {
	entry := tracking.UploadEntry{
		Artifact:    name,
		Size:        size,
		Destination: u.destination.Name(),
		Duration:    duration,
		Status:      status,
		Error:       errorString(err),
	}
	if status == tracking.StatusUploaded {
		entry.UploadedAt = time.Now()
	}
	if trackErr := tracker.TrackUpload(entry); trackErr != nil {
		u.logger.Warn("Failed to record upload of %s: %v", name, trackErr)
	}
}
