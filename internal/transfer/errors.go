package transfer

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names a pipeline stage in logs and errors
type Stage string

const (
	StageAuthorization   Stage = "authorization"
	StageTokenExchange   Stage = "token_exchange"
	StageFetch           Stage = "fetch"
	StageMaterialization Stage = "materialization"
	StageUpload          Stage = "upload"
)

// Stage failures, matched with errors.Is
var (
	ErrTokenExchange   = errors.New("token exchange failed")
	ErrFetch           = errors.New("recording fetch failed")
	ErrMaterialization = errors.New("materialization failed")
	ErrUpload          = errors.New("upload failed")

	ErrHostNotAllowed     = errors.New("meeting host is not allowed")
	ErrMissingState       = errors.New("missing state parameter")
	ErrTokenAlreadySet    = errors.New("session token already set")
	ErrNotAuthorized      = errors.New("session has no access token")
	ErrAlreadyResponded   = errors.New("response already sent")
	ErrResultAlreadyFinal = errors.New("result already finalized")
)

var stageSentinels = map[Stage]error{
	StageTokenExchange:   ErrTokenExchange,
	StageFetch:           ErrFetch,
	StageMaterialization: ErrMaterialization,
	StageUpload:          ErrUpload,
}

// StageError is a failure of one pipeline stage for one meeting
type StageError struct {
	Stage     Stage
	MeetingID string
	Err       error
}

func newStageError(stage Stage, meetingID string, err error) *StageError {
	return &StageError{Stage: stage, MeetingID: meetingID, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for meeting %s: %v", e.Stage, e.MeetingID, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the failed stage
func (e *StageError) Is(target error) bool {
	sentinel, ok := stageSentinels[e.Stage]
	return ok && target == sentinel
}

// UploadError reports which artifacts reached the destination before the
// upload stage failed
type UploadError struct {
	Uploaded []string
	Failed   []string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploaded %d artifact(s) [%s], failed [%s]: %v",
		len(e.Uploaded), strings.Join(e.Uploaded, ", "), strings.Join(e.Failed, ", "), e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Partial reports whether some artifacts were uploaded
func (e *UploadError) Partial() bool {
	return len(e.Uploaded) > 0
}
