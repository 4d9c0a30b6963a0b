// Package box uploads transfer artifacts to a Box folder
package box

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// File represents a Box file
type File struct {
	ID            string       `json:"id"`
	Type          string       `json:"type"`
	Name          string       `json:"name"`
	Size          int64        `json:"size"`
	SHA1          string       `json:"sha1"`
	CreatedAt     time.Time    `json:"created_at"`
	ModifiedAt    time.Time    `json:"modified_at"`
	Parent        *FolderRef   `json:"parent,omitempty"`
	FileVersion   *FileVersion `json:"file_version,omitempty"`
	VersionNumber string       `json:"version_number"`
}

// FileVersion represents a Box file version
type FileVersion struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	SHA1 string `json:"sha1"`
}

// FolderRef is a reference to a parent folder
type FolderRef struct {
	ID string `json:"id"`
}

// uploadAttributes is the "attributes" part of a multipart upload
type uploadAttributes struct {
	Name   string     `json:"name"`
	Parent *FolderRef `json:"parent,omitempty"`
}

// uploadResponse wraps the file entries returned by upload endpoints
type uploadResponse struct {
	TotalCount int     `json:"total_count"`
	Entries    []*File `json:"entries"`
}

// UploadSession is a chunked upload session
type UploadSession struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PartSize          int64  `json:"part_size"`
	TotalParts        int    `json:"total_parts"`
	NumPartsProcessed int    `json:"num_parts_processed"`
	SessionExpiresAt  string `json:"session_expires_at"`
}

// UploadPartInfo identifies one uploaded part when committing a session
type UploadPartInfo struct {
	PartID string `json:"part_id"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	SHA1   string `json:"sha1,omitempty"`
}

// uploadPartResponse is returned for each uploaded part
type uploadPartResponse struct {
	Part *UploadPartInfo `json:"part"`
}

type createSessionRequest struct {
	FolderID string `json:"folder_id,omitempty"`
	FileSize int64  `json:"file_size"`
	FileName string `json:"file_name,omitempty"`
}

type commitSessionRequest struct {
	Parts []UploadPartInfo `json:"parts"`
}

// ErrorResponse represents Box API error response
type ErrorResponse struct {
	Type        string `json:"type"`
	Status      int    `json:"status"`
	Code        string `json:"code"`
	ContextInfo struct {
		Conflicts conflicts `json:"conflicts,omitempty"`
	} `json:"context_info,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// ItemRef identifies a conflicting item
type ItemRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// conflicts is a single item for file uploads and a list for folders
type conflicts []ItemRef

func (c *conflicts) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []ItemRef
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*c = list
		return nil
	}
	var single ItemRef
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*c = conflicts{single}
	return nil
}

// BoxError represents Box-specific errors
type BoxError struct {
	StatusCode int
	Message    string
	Code       string
	RequestID  string
	// ConflictID is the id of the existing file for item_name_taken errors
	ConflictID string
}

func (e *BoxError) Error() string {
	return fmt.Sprintf("Box API error: %s (status: %d, code: %s)", e.Message, e.StatusCode, e.Code)
}

// HTTPStatus returns the HTTP status of the failed call
func (e *BoxError) HTTPStatus() int {
	return e.StatusCode
}

// IsRetryable returns true if the error is retryable
func (e *BoxError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

const (
	APIBaseURL    = "https://api.box.com/2.0"
	UploadBaseURL = "https://upload.box.com/api/2.0"
	TokenURL      = "https://api.box.com/oauth2/token"

	RootFolderID = "0"

	// Box only accepts chunked uploads from 20 MiB
	MinChunkedUploadSize = 20 * 1024 * 1024

	ErrorCodeItemNameTaken = "item_name_taken"
	ErrorCodeInvalidGrant  = "invalid_grant"
	ErrorCodeUnauthorized  = "unauthorized"
)
