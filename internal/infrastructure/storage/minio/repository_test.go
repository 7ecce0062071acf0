package minio

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/jeffrey-bowles/uspto/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

// GetObject cannot build a usable *minio.Object; only error paths are mocked.
func (m *MockMinIOAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return nil, args.Error(1)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *MockMinIOAPI) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.Called(ctx, bucketName, objectName, opts).Error(0)
}

func (m *MockMinIOAPI) CopyObject(ctx context.Context, dst minio.CopyDestOptions, src minio.CopySrcOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, dst, src)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

type RepositoryTestSuite struct {
	suite.Suite
	api    *MockMinIOAPI
	client *MinIOClient
	repo   ObjectRepository
}

func (s *RepositoryTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	log := logging.NewNopLogger()
	s.client = NewMinIOClientWithAPI(s.api, "artifacts", "us-east-1", log)
	s.repo = NewMinIORepository(s.client, log)
}

func (s *RepositoryTestSuite) TearDownTest() {
	s.api.AssertExpectations(s.T())
}

func (s *RepositoryTestSuite) TestPut() {
	s.api.On("PutObject", mock.Anything, "artifacts", "index/four_year.tmp", mock.Anything, int64(2),
		minio.PutObjectOptions{ContentType: "application/json"}).
		Return(minio.UploadInfo{Key: "index/four_year.tmp"}, nil)

	s.NoError(s.repo.Put(context.Background(), "index/four_year.tmp", []byte("{}"), "application/json"))
}

func (s *RepositoryTestSuite) TestPut_Failure() {
	s.api.On("PutObject", mock.Anything, "artifacts", "k", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("503"))

	err := s.repo.Put(context.Background(), "k", []byte("x"), "")
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeArtifactWriteFailed))
}

func (s *RepositoryTestSuite) TestGet_NoSuchKey() {
	s.api.On("GetObject", mock.Anything, "artifacts", "missing", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

	_, err := s.repo.Get(context.Background(), "missing")
	s.True(pkgerrors.IsNotFound(err))
}

func (s *RepositoryTestSuite) TestExists() {
	s.api.On("StatObject", mock.Anything, "artifacts", "present", mock.Anything).
		Return(minio.ObjectInfo{Key: "present"}, nil)
	s.api.On("StatObject", mock.Anything, "artifacts", "absent", mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	ok, err := s.repo.Exists(context.Background(), "present")
	s.NoError(err)
	s.True(ok)
	ok, err = s.repo.Exists(context.Background(), "absent")
	s.NoError(err)
	s.False(ok)
}

func (s *RepositoryTestSuite) TestCopy() {
	s.api.On("CopyObject", mock.Anything,
		minio.CopyDestOptions{Bucket: "artifacts", Object: "b"},
		minio.CopySrcOptions{Bucket: "artifacts", Object: "a"}).
		Return(minio.UploadInfo{}, nil)

	s.NoError(s.repo.Copy(context.Background(), "a", "b"))
}

func (s *RepositoryTestSuite) TestDelete() {
	s.api.On("RemoveObject", mock.Anything, "artifacts", "a", mock.Anything).Return(nil)
	s.NoError(s.repo.Delete(context.Background(), "a"))
}

func (s *RepositoryTestSuite) TestList() {
	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "pruned/2024-06-15", Size: 10, LastModified: time.Unix(0, 0)}
	ch <- minio.ObjectInfo{Key: "pruned/2024-06-16", Size: 12}
	close(ch)
	s.api.On("ListObjects", mock.Anything, "artifacts", minio.ListObjectsOptions{Prefix: "pruned/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	objs, err := s.repo.List(context.Background(), "pruned/")
	s.NoError(err)
	s.Len(objs, 2)
	s.Equal("pruned/2024-06-16", objs[1].Key)
}

func (s *RepositoryTestSuite) TestClosedClient() {
	s.NoError(s.client.Close())
	err := s.repo.Put(context.Background(), "k", nil, "")
	s.Equal(ErrMinIOClientClosed, err)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
