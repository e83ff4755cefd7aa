package dropbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	sdk "github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox"
	"github.com/dropbox/dropbox-sdk-go-unofficial/v6/dropbox/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cbcr-finder/internal/storage"
)

type fakeFiles struct {
	objects  map[string][]byte
	uploads  []*files.UploadArg
	listArgs []*files.ListFolderArg
	pages    []*files.ListFolderResult
	failWith error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{objects: map[string][]byte{}}
}

func notFoundDownload() error {
	return files.DownloadAPIError{
		EndpointError: &files.DownloadError{
			Tagged: sdk.Tagged{Tag: files.DownloadErrorPath},
			Path:   &files.LookupError{Tagged: sdk.Tagged{Tag: files.LookupErrorNotFound}},
		},
	}
}

func (f *fakeFiles) Download(arg *files.DownloadArg) (*files.FileMetadata, io.ReadCloser, error) {
	if f.failWith != nil {
		return nil, nil, f.failWith
	}
	data, ok := f.objects[arg.Path]
	if !ok {
		return nil, nil, notFoundDownload()
	}
	return &files.FileMetadata{}, io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFiles) Upload(arg *files.UploadArg, content io.Reader) (*files.FileMetadata, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, arg)
	f.objects[arg.Path] = data
	return &files.FileMetadata{}, nil
}

func (f *fakeFiles) ListFolder(arg *files.ListFolderArg) (*files.ListFolderResult, error) {
	f.listArgs = append(f.listArgs, arg)
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.next(), nil
}

func (f *fakeFiles) ListFolderContinue(_ *files.ListFolderContinueArg) (*files.ListFolderResult, error) {
	return f.next(), nil
}

func (f *fakeFiles) next() *files.ListFolderResult {
	if len(f.pages) == 0 {
		return &files.ListFolderResult{}
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page
}

func fileEntry(display string) *files.FileMetadata {
	meta := &files.FileMetadata{}
	meta.PathDisplay = display
	return meta
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestPutUsesOverwriteMode(t *testing.T) {
	fake := newFakeFiles()
	store := newWithAPI(fake, nil)

	require.NoError(t, store.Put(context.Background(), "CbCRs/metadata.csv", []byte("a,b")))
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, "/CbCRs/metadata.csv", fake.uploads[0].Path)
	require.NotNil(t, fake.uploads[0].Mode)
	assert.Equal(t, files.WriteModeOverwrite, fake.uploads[0].Mode.Tag)

	got, err := store.Get(context.Background(), "CbCRs/metadata.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b", string(got))
}

func TestGetMapsNotFound(t *testing.T) {
	store := newWithAPI(newFakeFiles(), nil)
	_, err := store.Get(context.Background(), "CbCRs/blacklist.csv")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetOtherErrorIsNotNotFound(t *testing.T) {
	fake := newFakeFiles()
	fake.failWith = errors.New("rate limited")
	store := newWithAPI(fake, nil)
	_, err := store.Get(context.Background(), "CbCRs/blacklist.csv")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestListFollowsCursorAndFiltersPrefix(t *testing.T) {
	fake := newFakeFiles()
	fake.pages = []*files.ListFolderResult{
		{
			Entries: []files.IsMetadata{fileEntry("/CbCRs/acme/a.pdf"), &files.FolderMetadata{}},
			HasMore: true,
			Cursor:  "c1",
		},
		{
			Entries: []files.IsMetadata{fileEntry("/CbCRs/other/b.pdf"), fileEntry("/CbCRs/acme/c.pdf")},
		},
	}
	store := newWithAPI(fake, nil)

	got, err := store.List(context.Background(), "CbCRs/acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"CbCRs/acme/a.pdf", "CbCRs/acme/c.pdf"}, got)
	require.Len(t, fake.listArgs, 1)
	assert.Equal(t, "/CbCRs", fake.listArgs[0].Path)
	assert.True(t, fake.listArgs[0].Recursive)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(notFoundDownload()))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.True(t, isNotFound(files.ListFolderAPIError{
		EndpointError: &files.ListFolderError{
			Tagged: sdk.Tagged{Tag: files.ListFolderErrorPath},
			Path:   &files.LookupError{Tagged: sdk.Tagged{Tag: files.LookupErrorNotFound}},
		},
	}))
}
