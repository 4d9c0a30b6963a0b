package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/curtbushko/zoom-transfer/internal/directory"
	"github.com/curtbushko/zoom-transfer/internal/logging"
	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// TokenExchanger runs the OAuth authorization code flow
type TokenExchanger interface {
	ConsentURL(state string) string
	Exchange(ctx context.Context, code string) (*zoom.AccessToken, error)
}

// HostPolicy decides which meeting hosts may have recordings transferred
type HostPolicy interface {
	IsAllowed(email string) bool
}

// ClientFactory builds a recording client on top of an authorized Doer
type ClientFactory func(doer zoom.Doer) zoom.RecordingClient

// Request carries the callback parameters of one invocation. State is the
// meeting id; Code is empty on the first, unauthorized call.
type Request struct {
	State string
	Code  string
}

// Orchestrator drives authorization, fetch and materialization for one session
type Orchestrator struct {
	auth         TokenExchanger
	newClient    ClientFactory
	dirs         directory.DirectoryManager
	materializer *Materializer
	hosts        HostPolicy
	logger       logging.Logger
}

// OrchestratorConfig holds the collaborators of an Orchestrator. Hosts is
// optional; without it every host is allowed.
type OrchestratorConfig struct {
	Auth         TokenExchanger
	NewClient    ClientFactory
	Directories  directory.DirectoryManager
	Materializer *Materializer
	Hosts        HostPolicy
	Logger       logging.Logger
}

// NewOrchestrator creates an orchestrator from cfg
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Orchestrator{
		auth:         cfg.Auth,
		newClient:    cfg.NewClient,
		dirs:         cfg.Directories,
		materializer: cfg.Materializer,
		hosts:        cfg.Hosts,
		logger:       logger,
	}
}

// Run executes the session. Without a code the caller is redirected to the
// consent page and the result is finalized as a failure with no other fields.
// With a code the token is exchanged, the caller is acknowledged, and the
// meeting's metadata and recordings are written under a per-request directory.
// The result is finalized exactly once. Returned errors are *StageError.
func (o *Orchestrator) Run(ctx context.Context, session *Session, req Request, responder Responder) (*Result, error) {
	result := session.Result()
	logger := o.logger.WithFields(map[string]interface{}{
		"meeting_id": session.MeetingID,
		"request_id": session.RequestID,
	})

	if req.Code == "" {
		logger.WithFields(map[string]interface{}{"stage": StageAuthorization}).
			Info("No authorization code, redirecting to Zoom consent")
		if err := responder.Redirect(o.auth.ConsentURL(session.MeetingID)); err != nil {
			logger.Warn("Redirect was not sent: %v", err)
		}
		o.finalize(logger, result, false)
		return result, nil
	}

	token, err := o.auth.Exchange(ctx, req.Code)
	if err != nil {
		message := TokenFailureMessage
		if errors.Is(err, zoom.ErrMissingAccessToken) {
			message = MissingTokenMessage
		}
		if sendErr := responder.Message(message); sendErr != nil {
			logger.Warn("Token failure message was not sent: %v", sendErr)
		}
		return result, o.fail(logger, result, StageTokenExchange, session.MeetingID, err)
	}

	if err := session.SetToken(token); err != nil {
		return result, o.fail(logger, result, StageTokenExchange, session.MeetingID, err)
	}
	authorized := map[string]interface{}{"stage": StageTokenExchange}
	if !token.ExpiresAt.IsZero() {
		authorized["token_expires_at"] = token.ExpiresAt.Format(time.RFC3339)
	}
	logger.LogTransferEvent("authorized", session.MeetingID, authorized)

	if err := responder.Message(AcknowledgmentMessage); err != nil {
		logger.Warn("Acknowledgment was not sent: %v", err)
	}

	doer, err := session.AuthorizedClient()
	if err != nil {
		return result, o.fail(logger, result, StageFetch, session.MeetingID, err)
	}
	client := o.newClient(doer)

	fetchStart := time.Now()
	recordings, err := client.GetMeetingRecordings(ctx, session.MeetingID)
	logger.LogPerformance(logging.PerformanceMetrics{
		Operation: "fetch_recordings",
		Duration:  time.Since(fetchStart),
		Success:   err == nil,
		Error:     errorString(err),
		Metadata:  map[string]interface{}{"meeting_id": session.MeetingID, "stage": StageFetch},
	})
	if err != nil {
		return result, o.fail(logger, result, StageFetch, session.MeetingID, err)
	}

	if o.hosts != nil && !o.hosts.IsAllowed(recordings.HostEmail) {
		err := fmt.Errorf("%w: %s", ErrHostNotAllowed, recordings.HostEmail)
		return result, o.fail(logger, result, StageFetch, session.MeetingID, err)
	}

	dir, err := o.dirs.Prepare(session.RequestID)
	if err != nil {
		return result, o.fail(logger, result, StageMaterialization, session.MeetingID, err)
	}

	info := recordings.Info()
	result.LocalFilePath = dir.FullPath
	result.MeetingInfo = &info

	name, err := o.materializer.WriteMetadata(dir.FullPath, recordings)
	if err != nil {
		return result, o.fail(logger, result, StageMaterialization, session.MeetingID, err)
	}
	result.MeetingResponseFileName = name

	if session.TokenExpired(zoom.TokenExpiryBuffer) {
		err := fmt.Errorf("%w before downloads started (expires at %s)",
			zoom.ErrTokenExpired, session.TokenExpiresAt().Format(time.RFC3339))
		return result, o.fail(logger, result, StageMaterialization, session.MeetingID, err)
	}
	downloadDoer, err := session.AuthorizedDownloadClient()
	if err != nil {
		return result, o.fail(logger, result, StageMaterialization, session.MeetingID, err)
	}

	videos, err := o.materializer.MaterializeVideos(ctx, o.newClient(downloadDoer), dir.FullPath, recordings)
	if err != nil {
		return result, o.fail(logger, result, StageMaterialization, session.MeetingID, err)
	}
	result.MeetingVideos = videos

	logger.LogTransferEvent("materialized", session.MeetingID, map[string]interface{}{
		"stage":  StageMaterialization,
		"videos": len(videos),
		"dir":    dir.FullPath,
	})
	o.finalize(logger, result, true)
	return result, nil
}

func (o *Orchestrator) fail(logger logging.Logger, result *Result, stage Stage, meetingID string, err error) error {
	stageErr := newStageError(stage, meetingID, err)
	logger.WithFields(map[string]interface{}{"stage": stage}).Error("%v", stageErr)
	o.finalize(logger, result, false)
	return stageErr
}

func (o *Orchestrator) finalize(logger logging.Logger, result *Result, success bool) {
	if err := result.finalize(success); err != nil {
		logger.Error("Result finalized twice: %v", err)
	}
}
