// Package minio stores pipeline artifacts in an S3-compatible bucket.
package minio

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jeffrey-bowles/uspto/internal/config"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client used here.
type MinIOAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

var ErrMinIOClientClosed = errors.New(errors.ErrCodeServiceUnavailable, "minio client is closed")

// MinIOClient is a connected client bound to the artifact bucket.
type MinIOClient struct {
	api    MinIOAPI
	bucket string
	region string
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewMinIOClient connects to cfg.Endpoint and creates the bucket when it
// does not exist.
func NewMinIOClient(cfg config.MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	api, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	c := NewMinIOClientWithAPI(api, cfg.Bucket, region, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("minio client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL),
	)
	return c, nil
}

// NewMinIOClientWithAPI wraps an existing API implementation (for testing).
func NewMinIOClientWithAPI(api MinIOAPI, bucket, region string, log logging.Logger) *MinIOClient {
	return &MinIOClient{api: api, bucket: bucket, region: region, logger: log}
}

// EnsureBucket creates the artifact bucket if needed.
func (c *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check bucket").WithDetail(c.bucket)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create bucket").WithDetail(c.bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", c.bucket))
	return nil
}

// Bucket is the artifact bucket name.
func (c *MinIOClient) Bucket() string {
	return c.bucket
}

func (c *MinIOClient) API() (MinIOAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrMinIOClientClosed
	}
	return c.api, nil
}

// HealthCheck verifies the bucket is reachable.
func (c *MinIOClient) HealthCheck(ctx context.Context) error {
	api, err := c.API()
	if err != nil {
		return err
	}
	exists, err := api.BucketExists(ctx, c.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	}
	if !exists {
		return errors.New(errors.ErrCodeServiceUnavailable, "artifact bucket missing").WithDetail(c.bucket)
	}
	return nil
}

func (c *MinIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
