package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/flipbook/pagepress/internal/config"
)

// MinioStore persists objects in any S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the endpoint configured under Storage.S3*.
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	if cfg.Storage.S3Endpoint == "" || cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket must be set for the s3 blob store")
	}
	client, err := minio.New(cfg.Storage.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Storage.S3AccessKey, cfg.Storage.S3SecretKey, ""),
		Secure: cfg.Storage.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Storage.Bucket}, nil
}

func (s *MinioStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentTypeForKey(key)})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.client.EndpointURL().JoinPath(s.bucket, key).String(), nil
}
