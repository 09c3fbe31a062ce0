package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStore persists objects in a Google Cloud Storage bucket. Writes retry
// with exponential backoff because transient GCS errors are common enough to
// matter for multi-hundred-page documents.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store backed by the named bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be set for the gcs blob store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Store(ctx context.Context, key string, data []byte) (string, error) {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := s.write(ctx, key, data)
		if err == nil {
			return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key), nil
		}

		lastErr = err
		slog.Warn(
			"Blob upload failed, will retry.",
			"gcsObject", key,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", key, "error", ctx.Err())
			return "", ctx.Err()
		}
	}
	slog.Error("Blob upload failed after all retries.", "gcsObject", key, "error", lastErr)
	return "", fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

func (s *GCSStore) write(ctx context.Context, key string, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(writeCtx)
	w.ContentType = contentTypeForKey(key)

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			// Precondition failure means the object already exists, which is
			// not a failure in an idempotent pipeline.
			slog.Info("Object already exists, skipping.", "gcsObject", key)
			return nil
		}
		return fmt.Errorf("io.Copy to GCS failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
