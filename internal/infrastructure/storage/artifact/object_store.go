package artifact

import (
	"context"
	"path"

	"github.com/google/uuid"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/storage/minio"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const contentTypeJSON = "application/json"

// ObjectStore keeps artifacts in the object bucket under prefix.
type ObjectStore struct {
	repo   minio.ObjectRepository
	prefix string
	logger logging.Logger
}

// NewObjectStore returns an ObjectStore writing below prefix.
func NewObjectStore(repo minio.ObjectRepository, prefix string, log logging.Logger) *ObjectStore {
	return &ObjectStore{repo: repo, prefix: prefix, logger: log}
}

func (o *ObjectStore) objectKey(key string) string {
	return path.Join(o.prefix, key) + ".json"
}

// Write uploads to a temporary key and copies it onto the final key, so the
// final object is only ever replaced whole.
func (o *ObjectStore) Write(ctx context.Context, key string, data []byte) error {
	final := o.objectKey(key)
	tmp := final + ".tmp-" + uuid.NewString()
	if err := o.repo.Put(ctx, tmp, data, contentTypeJSON); err != nil {
		return err
	}
	defer func() {
		if err := o.repo.Delete(ctx, tmp); err != nil {
			o.logger.Warn("failed to remove temporary artifact object", logging.String("key", tmp), logging.Err(err))
		}
	}()
	return o.repo.Copy(ctx, tmp, final)
}

func (o *ObjectStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := o.repo.Get(ctx, o.objectKey(key))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, notFound(key)
		}
		return nil, err
	}
	return data, nil
}

func (o *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	return o.repo.Exists(ctx, o.objectKey(key))
}
