package artifact

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// FileStore keeps each artifact as <root>/<key>.json.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to create artifact dir").WithDetail(root)
	}
	return &FileStore{root: root}, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key)+".json")
}

// Write writes to a temp file in the target directory, fsyncs it and
// renames it over the previous document.
func (f *FileStore) Write(_ context.Context, key string, data []byte) error {
	path := f.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to create artifact dir").WithDetail(key)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to create temp file").WithDetail(key)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to write artifact").WithDetail(key)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to sync artifact").WithDetail(key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to close artifact").WithDetail(key)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "failed to replace artifact").WithDetail(key)
	}
	success = true
	return nil
}

func (f *FileStore) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read artifact").WithDetail(key)
	}
	return data, nil
}

func (f *FileStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(f.path(key))
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to stat artifact").WithDetail(key)
}
