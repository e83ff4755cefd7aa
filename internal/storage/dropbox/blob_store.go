// Package dropbox provides a blob store backed by a Dropbox app folder.
package dropbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	sdk "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"go.uber.org/zap"

	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

// Config captures the parameters required to reach Dropbox.
type Config struct {
	Token string
}

// filesAPI is the subset of files.Client the store relies on.
type filesAPI interface {
	Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error)
	Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error)
	ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error)
	ListFolderContinue(arg *files.ListFolderContinueArg) (*files.ListFolderResult, error)
}

// BlobStore maps object paths onto absolute Dropbox paths.
type BlobStore struct {
	api    filesAPI
	logger *zap.Logger
}

// New creates a Dropbox-backed store authenticated with an access token.
func New(cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("dropbox access token is required")
	}
	client := files.New(sdk.Config{Token: cfg.Token, LogLevel: sdk.LogOff})
	return newWithAPI(client, logger), nil
}

func newWithAPI(api filesAPI, logger *zap.Logger) *BlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{api: api, logger: logger}
}

func remotePath(p string) string {
	return "/" + strings.TrimPrefix(p, "/")
}

// Get downloads the file at path. The SDK has no context support, so ctx is
// only checked before the call.
func (s *BlobStore) Get(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, body, err := s.api.Download(files.NewDownloadArg(remotePath(p)))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", p, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	defer func() {
		if closeErr := body.Close(); closeErr != nil {
			s.logger.Warn("failed to close dropbox download", zap.String("path", p), zap.Error(closeErr))
		}
	}()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// Put uploads data in overwrite mode.
func (s *BlobStore) Put(ctx context.Context, p string, data []byte) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	arg := files.NewUploadArg(remotePath(p))
	arg.Mode = &files.WriteMode{Tagged: sdk.Tagged{Tag: files.WriteModeOverwrite}}
	if _, err := s.api.Upload(arg, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload %s: %w", p, err)
	}
	return nil
}

// List walks the folder containing prefix recursively and keeps files whose
// path starts with prefix. A missing folder lists as empty.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	folder := prefix
	if !strings.HasSuffix(folder, "/") {
		folder = path.Dir(folder)
	}
	folder = strings.TrimSuffix(remotePath(folder), "/")
	if folder == "/." {
		folder = ""
	}

	arg := files.NewListFolderArg(folder)
	arg.Recursive = true
	res, err := s.api.ListFolder(arg)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	var out []string
	for {
		for _, entry := range res.Entries {
			f, ok := entry.(*files.FileMetadata)
			if !ok {
				continue
			}
			name := strings.TrimPrefix(f.PathDisplay, "/")
			if name == "" {
				name = strings.TrimPrefix(f.PathLower, "/")
			}
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		if !res.HasMore {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err = s.api.ListFolderContinue(files.NewListFolderContinueArg(res.Cursor))
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
	}
	return out, nil
}

// isNotFound reports whether err is a Dropbox path/not_found lookup error.
func isNotFound(err error) bool {
	var download files.DownloadAPIError
	if errors.As(err, &download) {
		return download.EndpointError != nil && lookupNotFound(download.EndpointError.Path)
	}
	var downloadPtr *files.DownloadAPIError
	if errors.As(err, &downloadPtr) && downloadPtr != nil {
		return downloadPtr.EndpointError != nil && lookupNotFound(downloadPtr.EndpointError.Path)
	}
	var list files.ListFolderAPIError
	if errors.As(err, &list) {
		return list.EndpointError != nil && lookupNotFound(list.EndpointError.Path)
	}
	var listPtr *files.ListFolderAPIError
	if errors.As(err, &listPtr) && listPtr != nil {
		return listPtr.EndpointError != nil && lookupNotFound(listPtr.EndpointError.Path)
	}
	return false
}

func lookupNotFound(l *files.LookupError) bool {
	return l != nil && l.Tag == files.LookupErrorNotFound
}
