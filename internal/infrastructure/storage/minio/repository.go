package minio

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectRepository reads and writes objects in the artifact bucket.
type ObjectRepository interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Copy duplicates src to dst server side.
	Copy(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

type minioRepository struct {
	client *MinIOClient
	logger logging.Logger
}

// NewMinIORepository returns an ObjectRepository over client's bucket.
func NewMinIORepository(client *MinIOClient, log logging.Logger) ObjectRepository {
	return &minioRepository{client: client, logger: log}
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (r *minioRepository) Put(ctx context.Context, key string, data []byte, contentType string) error {
	api, err := r.client.API()
	if err != nil {
		return err
	}
	_, err = api.PutObject(ctx, r.client.Bucket(), key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "upload failed").WithDetail(key)
	}
	return nil
}

func (r *minioRepository) Get(ctx context.Context, key string) ([]byte, error) {
	api, err := r.client.API()
	if err != nil {
		return nil, err
	}
	obj, err := api.GetObject(ctx, r.client.Bucket(), key, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "download failed").WithDetail(key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound.WithDetail(key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "download failed").WithDetail(key)
	}
	return data, nil
}

func (r *minioRepository) Exists(ctx context.Context, key string) (bool, error) {
	api, err := r.client.API()
	if err != nil {
		return false, err
	}
	if _, err := api.StatObject(ctx, r.client.Bucket(), key, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "stat failed").WithDetail(key)
	}
	return true, nil
}

func (r *minioRepository) Copy(ctx context.Context, src, dst string) error {
	api, err := r.client.API()
	if err != nil {
		return err
	}
	bucket := r.client.Bucket()
	_, err = api.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: dst},
		minio.CopySrcOptions{Bucket: bucket, Object: src})
	if err != nil {
		if isNoSuchKey(err) {
			return ErrObjectNotFound.WithDetail(src)
		}
		return errors.Wrap(err, errors.ErrCodeArtifactWriteFailed, "copy failed").WithDetail(src + " -> " + dst)
	}
	return nil
}

func (r *minioRepository) Delete(ctx context.Context, key string) error {
	api, err := r.client.API()
	if err != nil {
		return err
	}
	if err := api.RemoveObject(ctx, r.client.Bucket(), key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "delete failed").WithDetail(key)
	}
	return nil
}

func (r *minioRepository) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	api, err := r.client.API()
	if err != nil {
		return nil, err
	}
	var out []ObjectInfo
	for obj := range api.ListObjects(ctx, r.client.Bucket(), minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeExternalService, "list failed").WithDetail(prefix)
		}
		out = append(out, ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return out, nil
}
