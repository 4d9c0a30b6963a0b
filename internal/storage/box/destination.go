package box

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/curtbushko/zoom-transfer/internal/config"
	"github.com/curtbushko/zoom-transfer/internal/logging"
)

// Destination stores artifacts in a single Box folder
type Destination struct {
	client   *Client
	folderID string
}

// NewDestination creates a destination that uploads into folderID
func NewDestination(client *Client, folderID string) *Destination {
	if folderID == "" {
		folderID = RootFolderID
	}
	return &Destination{client: client, folderID: folderID}
}

// NewFromConfig builds a Box destination from configuration. onRotate is
// called with every refresh token Box hands out.
func NewFromConfig(cfg config.BoxConfig, httpClient *http.Client, onRotate RotationFunc) *Destination {
	auth := NewOAuth2Authenticator(Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
	}, TokenURL, httpClient)
	if onRotate != nil {
		auth.SetRotationCallback(onRotate)
	}
	return NewDestination(NewClient(auth, httpClient), cfg.FolderID)
}

// Name returns the provider name
func (d *Destination) Name() string {
	return config.ProviderBox
}

// Put uploads content as the file named by the last element of filePath.
// An existing file with the same name gets a new version.
func (d *Destination) Put(ctx context.Context, filePath string, content io.Reader, size int64) error {
	name := path.Base(strings.TrimPrefix(filePath, "/"))
	if name == "" || name == "." {
		return fmt.Errorf("invalid destination path %q", filePath)
	}

	var (
		file *File
		err  error
	)
	if size >= MinChunkedUploadSize {
		file, err = d.putChunked(ctx, name, content, size)
	} else {
		file, err = d.putSmall(ctx, name, content)
	}
	if err != nil {
		return fmt.Errorf("box upload of %s failed: %w", name, err)
	}

	logging.Debug("Uploaded %s to Box as file %s (%d bytes)", name, file.ID, file.Size)
	return nil
}

func (d *Destination) putSmall(ctx context.Context, name string, content io.Reader) (*File, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	file, err := d.client.UploadFile(ctx, d.folderID, name, data)
	if conflictID, ok := nameTaken(err); ok {
		logging.Debug("Box file %s exists as %s, uploading new version", name, conflictID)
		return d.client.UploadFileVersion(ctx, conflictID, name, data)
	}
	return file, err
}

func (d *Destination) putChunked(ctx context.Context, name string, content io.Reader, size int64) (*File, error) {
	session, err := d.client.CreateUploadSession(ctx, d.folderID, name, size)
	if conflictID, ok := nameTaken(err); ok {
		logging.Debug("Box file %s exists as %s, opening version session", name, conflictID)
		session, err = d.client.CreateVersionUploadSession(ctx, conflictID, size)
	}
	if err != nil {
		return nil, err
	}

	return d.client.UploadSessionContent(ctx, session, content, size)
}

func nameTaken(err error) (string, bool) {
	var boxErr *BoxError
	if errors.As(err, &boxErr) && boxErr.StatusCode == http.StatusConflict &&
		boxErr.Code == ErrorCodeItemNameTaken && boxErr.ConflictID != "" {
		return boxErr.ConflictID, true
	}
	return "", false
}
