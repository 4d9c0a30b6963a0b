// Package zoom defines data structures for the Zoom Cloud Recording API
package zoom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MeetingID is a meeting identifier. Zoom returns numeric ids in some payloads
// and strings (or UUIDs) in others, so both JSON forms are accepted.
type MeetingID string

// UnmarshalJSON accepts either a JSON string or a JSON number
func (m *MeetingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MeetingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("meeting id must be a string or number: %w", err)
	}
	*m = MeetingID(n.String())
	return nil
}

// String returns the identifier as a plain string
func (m MeetingID) String() string {
	return string(m)
}

// Int64 returns the numeric form of the identifier, if it has one
func (m MeetingID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(m), 10, 64)
	return n, err == nil
}

// RecordingFile represents a single recording file within a meeting recording
type RecordingFile struct {
	ID             string `json:"id"`
	MeetingID      string `json:"meeting_id"`
	RecordingStart string `json:"recording_start,omitempty"`
	RecordingEnd   string `json:"recording_end,omitempty"`
	FileType       string `json:"file_type,omitempty"`
	FileExtension  string `json:"file_extension"`
	FileSize       int64  `json:"file_size,omitempty"`
	DownloadURL    string `json:"download_url"`
	PlayURL        string `json:"play_url,omitempty"`
	Status         string `json:"status,omitempty"`
	RecordingType  string `json:"recording_type"`
}

// MeetingRecordings is the response of GET /meetings/{meetingId}/recordings.
// Raw keeps the response body exactly as received so it can be archived
// without dropping fields this struct does not model.
type MeetingRecordings struct {
	UUID           string          `json:"uuid"`
	ID             MeetingID       `json:"id"`
	AccountID      string          `json:"account_id"`
	HostID         string          `json:"host_id"`
	HostEmail      string          `json:"host_email"`
	Topic          string          `json:"topic"`
	Type           int             `json:"type"`
	StartTime      string          `json:"start_time"`
	Duration       int             `json:"duration"`
	TotalSize      int64           `json:"total_size"`
	RecordingCount int             `json:"recording_count"`
	RecordingFiles []RecordingFile `json:"recording_files"`

	Raw json.RawMessage `json:"-"`
}

// MeetingInfo is the minimal, stable projection of a meeting kept on the transfer result
type MeetingInfo struct {
	ID        string `json:"id"`
	Host      string `json:"host"`
	StartTime string `json:"startTime"`
	Topic     string `json:"topic"`
}

// ParseMeetingRecordings decodes a recordings response and retains the raw body
func ParseMeetingRecordings(body []byte) (*MeetingRecordings, error) {
	var result MeetingRecordings
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode meeting recordings: %w", err)
	}
	result.Raw = append(json.RawMessage(nil), body...)
	return &result, nil
}

// Info extracts the meeting info record
func (m *MeetingRecordings) Info() MeetingInfo {
	return MeetingInfo{
		ID:        m.ID.String(),
		Host:      m.HostEmail,
		StartTime: m.StartTime,
		Topic:     m.Topic,
	}
}

// PrettyJSON returns the raw response indented with four spaces. When no raw
// body was retained the struct itself is encoded.
func (m *MeetingRecordings) PrettyJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, m.Raw, "", "    "); err != nil {
			return nil, fmt.Errorf("failed to indent meeting response: %w", err)
		}
		return out.Bytes(), nil
	}
	return json.MarshalIndent(m, "", "    ")
}
