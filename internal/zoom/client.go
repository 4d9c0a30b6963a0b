// Package zoom provides API client for Zoom Cloud Recording endpoints
package zoom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// RecordingClient defines the Zoom Cloud Recording operations used by a transfer
type RecordingClient interface {
	GetMeetingRecordings(ctx context.Context, meetingID string) (*MeetingRecordings, error)
	DownloadRecordingFile(ctx context.Context, downloadURL string, writer io.Writer) (int64, error)
}

// Client implements RecordingClient on top of an authenticated Doer
type Client struct {
	httpClient Doer
	baseURL    string
}

// NewClient creates a new Zoom API client
func NewClient(httpClient Doer, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// escapeMeetingID encodes a meeting id or UUID for use in a path segment.
// Zoom requires UUIDs that start with "/" or contain "//" to be encoded twice.
func escapeMeetingID(meetingID string) string {
	escaped := url.PathEscape(meetingID)
	if strings.HasPrefix(meetingID, "/") || strings.Contains(meetingID, "//") {
		escaped = url.PathEscape(escaped)
	}
	return escaped
}

// GetMeetingRecordings retrieves recordings for a specific meeting
func (c *Client) GetMeetingRecordings(ctx context.Context, meetingID string) (*MeetingRecordings, error) {
	if meetingID == "" {
		return nil, fmt.Errorf("meeting id cannot be empty")
	}

	endpoint := fmt.Sprintf("%s/meetings/%s/recordings", c.baseURL, escapeMeetingID(meetingID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return ParseMeetingRecordings(body)
}

// DownloadRecordingFile streams a recording file from its download URL into writer
func (c *Client) DownloadRecordingFile(ctx context.Context, downloadURL string, writer io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to copy file content: %w", err)
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return written, fmt.Errorf("short download: got %d of %d bytes", written, resp.ContentLength)
	}

	return written, nil
}
