// Package dropbox uploads transfer artifacts to a Dropbox app folder
package dropbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"golang.org/x/oauth2"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

const (
	// TokenURL is the Dropbox OAuth 2.0 token endpoint
	TokenURL = "https://api.dropboxapi.com/oauth2/token"

	// Dropbox rejects single uploads above 150 MiB
	singleUploadLimit = 150 * 1024 * 1024
	sessionChunkSize  = 8 * 1024 * 1024
)

// filesAPI is the subset of the Dropbox files client used for uploads
type filesAPI interface {
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	UploadSessionStart(arg *files.UploadSessionStartArg, content io.Reader) (*files.UploadSessionStartResult, error)
	UploadSessionAppendV2(arg *files.UploadSessionAppendArg, content io.Reader) error
	UploadSessionFinish(arg *files.UploadSessionFinishArg, content io.Reader) (*files.FileMetadata, error)
}

// Destination uploads files to Dropbox, overwriting existing paths
type Destination struct {
	tokens      oauth2.TokenSource
	transport   http.RoundTripper
	timeout     time.Duration
	singleLimit int64
	chunkSize   int64
	newFiles    func(client *http.Client) filesAPI
}

// NewFromConfig builds a Dropbox destination that trades the configured
// refresh token for short-lived access tokens as needed
func NewFromConfig(cfg config.DropboxConfig, httpClient *http.Client) *Destination {
	return newDestination(cfg, TokenURL, httpClient)
}

func newDestination(cfg config.DropboxConfig, tokenURL string, httpClient *http.Client) *Destination {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	transport := httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)

	return &Destination{
		tokens:      oauthConfig.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken}),
		transport:   transport,
		timeout:     httpClient.Timeout,
		singleLimit: singleUploadLimit,
		chunkSize:   sessionChunkSize,
		newFiles: func(client *http.Client) filesAPI {
			return files.New(dropbox.Config{Client: client, LogLevel: dropbox.LogOff})
		},
	}
}

// Name returns the provider name
func (d *Destination) Name() string {
	return config.ProviderDropbox
}

// Put uploads content to filePath in overwrite mode
func (d *Destination) Put(ctx context.Context, filePath string, content io.Reader, size int64) error {
	if strings.Trim(filePath, "/") == "" {
		return fmt.Errorf("invalid destination path %q", filePath)
	}
	if !strings.HasPrefix(filePath, "/") {
		filePath = "/" + filePath
	}

	api := d.newFiles(d.clientFor(ctx))

	var (
		metadata *files.FileMetadata
		err      error
	)
	if size > d.singleLimit {
		metadata, err = d.putSession(ctx, api, filePath, content, size)
	} else {
		arg := files.NewUploadArg(filePath)
		arg.Mode = overwriteMode()
		metadata, err = api.Upload(arg, content)
	}
	if err != nil {
		return fmt.Errorf("dropbox upload of %s failed: %w", filePath, err)
	}

	if metadata != nil {
		logging.Debug("Uploaded %s to Dropbox (%d bytes, rev %s)", metadata.PathDisplay, metadata.Size, metadata.Rev)
	}
	return nil
}

func (d *Destination) putSession(ctx context.Context, api filesAPI, filePath string, content io.Reader, size int64) (*files.FileMetadata, error) {
	started, err := api.UploadSessionStart(files.NewUploadSessionStartArg(), io.LimitReader(content, d.chunkSize))
	if err != nil {
		return nil, fmt.Errorf("failed to start upload session: %w", err)
	}

	offset := d.chunkSize
	for size-offset > d.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cursor := files.NewUploadSessionCursor(started.SessionId, uint64(offset))
		if err := api.UploadSessionAppendV2(files.NewUploadSessionAppendArg(cursor), io.LimitReader(content, d.chunkSize)); err != nil {
			return nil, fmt.Errorf("failed to append at offset %d: %w", offset, err)
		}
		offset += d.chunkSize
	}

	commit := files.NewCommitInfo(filePath)
	commit.Mode = overwriteMode()
	cursor := files.NewUploadSessionCursor(started.SessionId, uint64(offset))
	return api.UploadSessionFinish(files.NewUploadSessionFinishArg(cursor, commit), content)
}

// clientFor returns an HTTP client that authorizes with the refreshed access
// token and binds every request to ctx
func (d *Destination) clientFor(ctx context.Context) *http.Client {
	return &http.Client{
		Timeout: d.timeout,
		Transport: &oauth2.Transport{
			Source: d.tokens,
			Base:   contextTransport{ctx: ctx, base: d.transport},
		},
	}
}

func overwriteMode() *files.WriteMode {
	return &files.WriteMode{Tagged: dropbox.Tagged{Tag: files.WriteModeOverwrite}}
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
