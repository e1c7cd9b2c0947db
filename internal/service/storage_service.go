package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prashant-hada-dev/sales-agent-proto/pkg/config"
	"go.uber.org/zap"
)

// ObjectStorage is the optional remote copy of uploaded documents.
type ObjectStorage interface {
	Store(ctx context.Context, objectName, path, contentType string) (publicURL string, err error)
}

// MinioStorage keeps uploaded documents in a MinIO or S3 compatible bucket.
type MinioStorage struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
	logger *zap.Logger
}

func NewMinioStorage(cfg *config.MinioConfig, logger *zap.Logger) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStorage{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
		logger: logger,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		s.logger.Info("Bucket created", zap.String("bucket", s.bucket))
	}
	return nil
}

func (s *MinioStorage) Store(ctx context.Context, objectName, path, contentType string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName, file, info.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.PublicURL(objectName), nil
}

// PublicURL returns the URL of the object, readable when the bucket policy allows it.
func (s *MinioStorage) PublicURL(objectName string) string {
	protocol := "http"
	if s.config.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, s.config.Endpoint, s.bucket, objectName)
}

// LocalFiles writes uploads under a directory. Names are generated, never taken from the client.
type LocalFiles struct {
	dir string
}

func NewLocalFiles(dir string) (*LocalFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalFiles{dir: dir}, nil
}

// Save copies r into a new file and returns its path and size.
func (l *LocalFiles) Save(id uuid.UUID, fileName string, r io.Reader) (string, int64, error) {
	path := filepath.Join(l.dir, id.String()+filepath.Ext(filepath.Base(fileName)))
	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, r)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to save file: %w", err)
	}
	return path, size, nil
}
