// Package tracking writes the per-invocation upload report
package tracking

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// ReportFileName is the name of the report written into the invocation directory
const ReportFileName = "upload-report.csv"

// Upload outcomes
const (
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// UploadEntry represents a single artifact upload attempt
type UploadEntry struct {
	Artifact    string
	Size        int64
	Destination string
	UploadedAt  time.Time
	Duration    time.Duration
	Status      string
	Error       string
}

// CSVTracker defines the interface for tracking uploads to CSV files
type CSVTracker interface {
	// TrackUpload records an upload entry to the CSV file
	TrackUpload(entry UploadEntry) error
}

// ReportTracker appends entries to one invocation's upload-report.csv
type ReportTracker struct {
	filePath string
	mu       sync.Mutex
}

var reportHeader = []string{"artifact", "size_bytes", "destination", "uploaded_at", "duration_ms", "status", "error"}

// NewReportTracker creates upload-report.csv with its header in dir
func NewReportTracker(dir string) (*ReportTracker, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tracker := &ReportTracker{
		filePath: filepath.Join(dir, ReportFileName),
	}
	if err := tracker.writeHeader(); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return tracker, nil
}

// Path returns the report file path
func (t *ReportTracker) Path() string {
	return t.filePath
}

// TrackUpload appends an entry to the report
func (t *ReportTracker) TrackUpload(entry UploadEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := os.OpenFile(t.filePath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file for append: %w", err)
	}
	defer file.Close()

	uploadedAt := ""
	if !entry.UploadedAt.IsZero() {
		uploadedAt = entry.UploadedAt.UTC().Format(time.RFC3339)
	}

	writer := csv.NewWriter(file)
	record := []string{
		entry.Artifact,
		strconv.FormatInt(entry.Size, 10),
		entry.Destination,
		uploadedAt,
		strconv.FormatInt(entry.Duration.Milliseconds(), 10),
		entry.Status,
		entry.Error,
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	writer.Flush()
	return writer.Error()
}

func (t *ReportTracker) writeHeader() error {
	file, err := os.Create(t.filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(reportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	writer.Flush()
	return writer.Error()
}

// NopTracker discards entries
type NopTracker struct{}

// TrackUpload implements CSVTracker
func (NopTracker) TrackUpload(UploadEntry) error { return nil }
