// Package transfer runs one authorize, fetch, materialize and upload cycle
// for a single meeting
package transfer

import (
	"encoding/json"
	"sync"

	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// VideoDescriptor is one recording file materialized locally
type VideoDescriptor struct {
	LocalFileName string `json:"localFileName"`
	DownloadURL   string `json:"downloadURL"`
}

// Result accumulates the outcome of one invocation. Success stays unset until
// the orchestrator finalizes the result, which happens exactly once. Success
// covers materialization; Uploaded records whether every artifact then
// reached the destination and stays unset when no upload was attempted.
type Result struct {
	mu sync.Mutex

	Success                 *bool             `json:"success,omitempty"`
	LocalFilePath           string            `json:"localFilePath,omitempty"`
	MeetingInfo             *zoom.MeetingInfo `json:"meetingInfo,omitempty"`
	MeetingResponseFileName string            `json:"meetingResponseFileName,omitempty"`
	MeetingVideos           []VideoDescriptor `json:"meetingVideos,omitempty"`
	UploadedArtifacts       []string          `json:"uploadedArtifacts,omitempty"`
	Uploaded                *bool             `json:"uploaded,omitempty"`
}

// finalize sets Success. Only the first call has an effect.
func (r *Result) finalize(success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Success != nil {
		return ErrResultAlreadyFinal
	}
	r.Success = &success
	return nil
}

// Finalized reports whether Success has been set
func (r *Result) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Success != nil
}

// Succeeded reports whether the result was finalized as a success
func (r *Result) Succeeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Success != nil && *r.Success
}

func (r *Result) markUploaded(uploaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Uploaded = &uploaded
}

// FullyUploaded reports whether the upload stage delivered every artifact
func (r *Result) FullyUploaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Uploaded != nil && *r.Uploaded
}

// Artifacts lists the local artifact names: every video, then the metadata file
func (r *Result) Artifacts() []string {
	names := make([]string, 0, len(r.MeetingVideos)+1)
	for _, video := range r.MeetingVideos {
		names = append(names, video.LocalFileName)
	}
	if r.MeetingResponseFileName != "" {
		names = append(names, r.MeetingResponseFileName)
	}
	return names
}

// MarshalJSON encodes the result under its lock
func (r *Result) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	type plain struct {
		Success                 *bool             `json:"success,omitempty"`
		LocalFilePath           string            `json:"localFilePath,omitempty"`
		MeetingInfo             *zoom.MeetingInfo `json:"meetingInfo,omitempty"`
		MeetingResponseFileName string            `json:"meetingResponseFileName,omitempty"`
		MeetingVideos           []VideoDescriptor `json:"meetingVideos,omitempty"`
		UploadedArtifacts       []string          `json:"uploadedArtifacts,omitempty"`
		Uploaded                *bool             `json:"uploaded,omitempty"`
	}
	return json.Marshal(plain{
		Success:                 r.Success,
		LocalFilePath:           r.LocalFilePath,
		MeetingInfo:             r.MeetingInfo,
		MeetingResponseFileName: r.MeetingResponseFileName,
		MeetingVideos:           r.MeetingVideos,
		UploadedArtifacts:       r.UploadedArtifacts,
		Uploaded:                r.Uploaded,
	})
}
