package box

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Box API client for uploads
type Client struct {
	httpClient    *authenticatedHTTPClient
	apiBaseURL    string
	uploadBaseURL string
	commitWait    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithBaseURLs overrides the API and upload endpoints
func WithBaseURLs(apiBaseURL, uploadBaseURL string) Option {
	return func(c *Client) {
		c.apiBaseURL = strings.TrimSuffix(apiBaseURL, "/")
		c.uploadBaseURL = strings.TrimSuffix(uploadBaseURL, "/")
	}
}

// WithCommitWait sets the longest wait between commit polls
func WithCommitWait(d time.Duration) Option {
	return func(c *Client) {
		c.commitWait = d
	}
}

// NewClient creates a new Box client
func NewClient(auth Authenticator, httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		httpClient:    newAuthenticatedHTTPClient(auth, httpClient),
		apiBaseURL:    APIBaseURL,
		uploadBaseURL: UploadBaseURL,
		commitWait:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UploadFile uploads content as a new file in folderID
func (c *Client) UploadFile(ctx context.Context, folderID, fileName string, content []byte) (*File, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if folderID == "" {
		folderID = RootFolderID
	}

	attributes := uploadAttributes{
		Name:   fileName,
		Parent: &FolderRef{ID: folderID},
	}
	return c.uploadMultipart(ctx, c.uploadBaseURL+"/files/content", attributes, content)
}

// UploadFileVersion uploads content as a new version of an existing file
func (c *Client) UploadFileVersion(ctx context.Context, fileID, fileName string, content []byte) (*File, error) {
	if fileID == "" {
		return nil, fmt.Errorf("file ID cannot be empty")
	}

	attributes := uploadAttributes{Name: fileName}
	return c.uploadMultipart(ctx, fmt.Sprintf("%s/files/%s/content", c.uploadBaseURL, fileID), attributes, content)
}

func (c *Client) uploadMultipart(ctx context.Context, url string, attributes uploadAttributes, content []byte) (*File, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	attributesJSON, err := json.Marshal(attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal file attributes: %w", err)
	}
	if err := writer.WriteField("attributes", string(attributesJSON)); err != nil {
		return nil, fmt.Errorf("failed to write attributes field: %w", err)
	}

	part, err := writer.CreateFormFile("file", attributes.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to write file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Content-MD5", sha1Hex(content))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	return decodeFirstEntry(resp.Body)
}

// CreateUploadSession creates a chunked upload session for a new file
func (c *Client) CreateUploadSession(ctx context.Context, folderID, fileName string, fileSize int64) (*UploadSession, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if folderID == "" {
		folderID = RootFolderID
	}
	if fileSize < MinChunkedUploadSize {
		return nil, fmt.Errorf("file size %d is less than minimum chunked upload size %d", fileSize, MinChunkedUploadSize)
	}

	request := createSessionRequest{FolderID: folderID, FileName: fileName, FileSize: fileSize}
	return c.createSession(ctx, c.uploadBaseURL+"/files/upload_sessions", request)
}

// CreateVersionUploadSession creates a chunked upload session for a new version of fileID
func (c *Client) CreateVersionUploadSession(ctx context.Context, fileID string, fileSize int64) (*UploadSession, error) {
	if fileID == "" {
		return nil, fmt.Errorf("file ID cannot be empty")
	}

	request := createSessionRequest{FileSize: fileSize}
	return c.createSession(ctx, fmt.Sprintf("%s/files/%s/upload_sessions", c.uploadBaseURL, fileID), request)
}

func (c *Client) createSession(ctx context.Context, url string, request createSessionRequest) (*UploadSession, error) {
	resp, err := c.postJSON(ctx, url, request, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var session UploadSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode upload session response: %w", err)
	}
	return &session, nil
}

// UploadPart uploads a single part of a chunked upload
func (c *Client) UploadPart(ctx context.Context, sessionID string, part []byte, offset, totalSize int64) (*UploadPartInfo, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	if len(part) == 0 {
		return nil, fmt.Errorf("part data cannot be empty")
	}

	rangeEnd := offset + int64(len(part)) - 1
	url := fmt.Sprintf("%s/files/upload_sessions/%s", c.uploadBaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(part))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload part request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, rangeEnd, totalSize))
	req.Header.Set("Digest", "sha="+sha1Base64(part))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload part: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var uploaded uploadPartResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("failed to decode upload part response: %w", err)
	}
	if uploaded.Part == nil {
		return nil, fmt.Errorf("upload part response did not describe the part")
	}
	return uploaded.Part, nil
}

// CommitUploadSession commits a chunked upload session. Box answers 202 while
// it is still assembling parts; the commit is retried until it completes.
func (c *Client) CommitUploadSession(ctx context.Context, sessionID string, parts []UploadPartInfo, fileDigest string) (*File, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID cannot be empty")
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("parts list cannot be empty")
	}

	url := fmt.Sprintf("%s/files/upload_sessions/%s/commit", c.uploadBaseURL, sessionID)
	headers := map[string]string{"Digest": "sha=" + fileDigest}

	for attempt := 0; attempt < 10; attempt++ {
		resp, err := c.postJSON(ctx, url, commitSessionRequest{Parts: parts}, headers)
		if err != nil {
			return nil, fmt.Errorf("failed to commit upload session: %w", err)
		}

		switch resp.StatusCode {
		case http.StatusCreated, http.StatusOK:
			defer resp.Body.Close()
			return decodeFirstEntry(resp.Body)
		case http.StatusAccepted:
			wait := retryAfter(resp, c.commitWait)
			resp.Body.Close()
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		default:
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
	}

	return nil, fmt.Errorf("upload session %s was not committed in time", sessionID)
}

// AbortUploadSession aborts a chunked upload session
func (c *Client) AbortUploadSession(ctx context.Context, sessionID string) error {
	url := fmt.Sprintf("%s/files/upload_sessions/%s", c.uploadBaseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create abort request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to abort upload session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

// UploadSessionContent streams r through an open session and commits it
func (c *Client) UploadSessionContent(ctx context.Context, session *UploadSession, r io.Reader, totalSize int64) (*File, error) {
	partSize := session.PartSize
	if partSize <= 0 {
		partSize = 8 * 1024 * 1024
	}

	whole := sha1.New()
	var parts []UploadPartInfo
	var offset int64
	buffer := make([]byte, partSize)

	for offset < totalSize {
		n, readErr := io.ReadFull(r, buffer)
		if n > 0 {
			chunk := buffer[:n]
			whole.Write(chunk)

			part, err := c.UploadPart(ctx, session.ID, chunk, offset, totalSize)
			if err != nil {
				_ = c.AbortUploadSession(context.WithoutCancel(ctx), session.ID)
				return nil, fmt.Errorf("failed to upload part at offset %d: %w", offset, err)
			}
			parts = append(parts, *part)
			offset += int64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			_ = c.AbortUploadSession(context.WithoutCancel(ctx), session.ID)
			return nil, fmt.Errorf("failed to read content: %w", readErr)
		}
	}

	if offset != totalSize {
		_ = c.AbortUploadSession(context.WithoutCancel(ctx), session.ID)
		return nil, fmt.Errorf("content ended after %d of %d bytes", offset, totalSize)
	}

	return c.CommitUploadSession(ctx, session.ID, parts, base64.StdEncoding.EncodeToString(whole.Sum(nil)))
}

func (c *Client) postJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) (*http.Response, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return c.httpClient.Do(req)
}

func decodeFirstEntry(r io.Reader) (*File, error) {
	var response uploadResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if len(response.Entries) == 0 {
		return nil, fmt.Errorf("no file entries in upload response")
	}
	return response.Entries[0], nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	boxErr := &BoxError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var errorResp ErrorResponse
	if json.Unmarshal(body, &errorResp) == nil && errorResp.Code != "" {
		boxErr.Code = errorResp.Code
		boxErr.Message = errorResp.Message
		boxErr.RequestID = errorResp.RequestID
		if len(errorResp.ContextInfo.Conflicts) > 0 {
			boxErr.ConflictID = errorResp.ContextInfo.Conflicts[0].ID
		}
	}

	return boxErr
}

func retryAfter(resp *http.Response, max time.Duration) time.Duration {
	wait := time.Second
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds >= 0 {
		wait = time.Duration(seconds) * time.Second
	}
	if wait > max {
		wait = max
	}
	return wait
}

func sha1Base64(data []byte) string {
	sum := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func sha1Hex(data []byte) string {
	return fmt.Sprintf("%x", sha1.Sum(data))
}
