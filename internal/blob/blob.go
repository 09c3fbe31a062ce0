package blob

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/flipbook/pagepress/internal/config"
)

// Store persists rendered images and returns a reference URL for each object.
type Store interface {
	// Store writes data under key and returns the URL consumers should use
	// to reach it.
	Store(ctx context.Context, key string, data []byte) (string, error)
}

// Lister is implemented by stores that can enumerate and remove their
// objects. The media cleanup command requires it.
type Lister interface {
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, key string) error
}

// New builds the blob store selected by the storage configuration.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Type {
	case "file":
		return NewFileStore(cfg.Storage.MediaRoot, cfg.Storage.MediaURL)
	case "gcs":
		return NewGCSStore(ctx, cfg.Storage.Bucket)
	case "s3":
		return NewMinioStore(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

func contentTypeForKey(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
