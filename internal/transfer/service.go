package transfer

import (
	"context"
	"strings"

	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/tracking"
	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// TrackerFactory opens the upload report for a materialized directory
type TrackerFactory func(dir string) (tracking.CSVTracker, error)

// Service runs complete invocations: orchestration followed by upload
type Service struct {
	orchestrator *Orchestrator
	uploader     *Uploader
	httpClient   zoom.Doer
	downloads    zoom.Doer
	newTracker   TrackerFactory
	logger       logging.Logger
}

// NewService creates a service. httpClient is the unauthenticated client each
// session wraps with its bearer token.
func NewService(orchestrator *Orchestrator, uploader *Uploader, httpClient zoom.Doer, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{
		orchestrator: orchestrator,
		uploader:     uploader,
		httpClient:   httpClient,
		newTracker: func(dir string) (tracking.CSVTracker, error) {
			return tracking.NewReportTracker(dir)
		},
		logger: logger,
	}
}

// WithDownloadClient sets the client recording downloads are issued through.
// Downloads are retried whole by the materializer, so this client should not
// retry on its own. Without it downloads share the API client.
func (s *Service) WithDownloadClient(client zoom.Doer) *Service {
	s.downloads = client
	return s
}

// WithTrackerFactory replaces how upload reports are opened
func (s *Service) WithTrackerFactory(factory TrackerFactory) *Service {
	s.newTracker = factory
	return s
}

// Execute handles one invocation in a fresh session. Uploading happens only
// after the orchestrator finalized the result as a success.
func (s *Service) Execute(ctx context.Context, requestID string, req Request, responder Responder) (*Result, error) {
	if strings.TrimSpace(req.State) == "" {
		return nil, ErrMissingState
	}
	if requestID == "" {
		requestID = logging.GenerateRequestID()
	}
	ctx = logging.WithRequestID(ctx, requestID)

	session := NewSession(requestID, req.State, s.httpClient)
	if s.downloads != nil {
		session.downloadClient = s.downloads
	}
	result, err := s.orchestrator.Run(ctx, session, req, responder)
	if err != nil || !result.Succeeded() {
		return result, err
	}

	tracker, err := s.newTracker(result.LocalFilePath)
	if err != nil {
		s.logger.Warn("Upload report unavailable for %s: %v", result.LocalFilePath, err)
		tracker = tracking.NopTracker{}
	}

	if err := s.uploader.Upload(ctx, result, tracker); err != nil {
		result.markUploaded(false)
		stageErr := newStageError(StageUpload, session.MeetingID, err)
		s.logger.WithFields(map[string]interface{}{
			"meeting_id": session.MeetingID,
			"request_id": requestID,
			"stage":      StageUpload,
		}).Error("%v", stageErr)
		return result, stageErr
	}

	result.markUploaded(true)
	s.logger.LogTransferEvent("uploaded", session.MeetingID, map[string]interface{}{
		"stage":     StageUpload,
		"artifacts": result.UploadedArtifacts,
	})
	return result, nil
}
