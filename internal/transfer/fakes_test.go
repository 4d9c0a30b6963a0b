package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/curtbushko/zoom-transfer/internal/download"
	"github.com/curtbushko/zoom-transfer/internal/zoom"
)

// recordingResponder captures what would have been sent to the caller
type recordingResponder struct {
	mu        sync.Mutex
	redirects []string
	messages  []string
}

func (r *recordingResponder) Redirect(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sentLocked() {
		return ErrAlreadyResponded
	}
	r.redirects = append(r.redirects, target)
	return nil
}

func (r *recordingResponder) Message(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sentLocked() {
		return ErrAlreadyResponded
	}
	r.messages = append(r.messages, text)
	return nil
}

func (r *recordingResponder) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sentLocked()
}

func (r *recordingResponder) sentLocked() bool {
	return len(r.redirects)+len(r.messages) > 0
}

type fakeExchanger struct {
	token *zoom.AccessToken
	err   error
	codes []string
}

func (f *fakeExchanger) ConsentURL(state string) string {
	return "https://zoom.test/oauth/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (*zoom.AccessToken, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

// fakeRecordings serves a fixed recordings response and file contents keyed by download URL
type fakeRecordings struct {
	recordings *zoom.MeetingRecordings
	fetchErr   error
	files      map[string]string
	failing    map[string]bool

	mu      sync.Mutex
	fetched []string
}

func (f *fakeRecordings) GetMeetingRecordings(_ context.Context, meetingID string) (*zoom.MeetingRecordings, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, meetingID)
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.recordings, nil
}

func (f *fakeRecordings) DownloadRecordingFile(_ context.Context, downloadURL string, w io.Writer) (int64, error) {
	if f.failing[downloadURL] {
		return 0, &zoom.HTTPError{StatusCode: 404, Status: "404 Not Found"}
	}
	content, ok := f.files[downloadURL]
	if !ok {
		return 0, fmt.Errorf("unknown download url %s", downloadURL)
	}
	n, err := io.WriteString(w, content)
	return int64(n), err
}

func (f *fakeRecordings) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

// memDestination keeps uploaded objects in memory
type memDestination struct {
	mu      sync.Mutex
	objects map[string][]byte
	order   []string
	failOn  map[string]bool
}

func newMemDestination() *memDestination {
	return &memDestination{objects: make(map[string][]byte), failOn: make(map[string]bool)}
}

func (d *memDestination) Name() string { return "memory" }

func (d *memDestination) Put(_ context.Context, path string, r io.Reader, size int64) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(content)) != size {
		return fmt.Errorf("size mismatch for %s: %d != %d", path, len(content), size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn[path] {
		return errors.New("destination rejected " + path)
	}
	d.objects[path] = content
	d.order = append(d.order, path)
	return nil
}

func (d *memDestination) object(path string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	content, ok := d.objects[path]
	return string(content), ok
}

func (d *memDestination) uploadOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.order...)
}

func noRetry() download.RetryExecutor {
	return download.NewRetryExecutor(download.NewRetryStrategy(download.DefaultRetryConfig(0)))
}

func threeRecordings() *zoom.MeetingRecordings {
	body := `{"id":"m123","topic":"Weekly Sync","host_email":"a@b.com","start_time":"2024-01-01T00:00:00Z","recording_files":[` +
		`{"recording_type":"shared_screen","file_extension":"mp4","download_url":"https://dl.test/1"},` +
		`{"recording_type":"audio_only","file_extension":"m4a","download_url":"https://dl.test/2"},` +
		`{"recording_type":"chat_file","file_extension":"txt","download_url":"https://dl.test/3"}]}`
	recordings, err := zoom.ParseMeetingRecordings([]byte(body))
	if err != nil {
		panic(err)
	}
	return recordings
}

func threeFiles() map[string]string {
	return map[string]string{
		"https://dl.test/1": strings.Repeat("v", 64),
		"https://dl.test/2": "audio-bytes",
		"https://dl.test/3": "chat log",
	}
}
