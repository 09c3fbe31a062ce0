package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore writes objects under a media root on local disk, mirroring the
// pages/, page_thumbnails/ and thumbnails/ layout the static file server
// exposes.
type FileStore struct {
	root    string
	baseURL string
}

// NewFileStore creates the media root if needed.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", root, err)
	}
	return &FileStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileStore) Store(_ context.Context, key string, data []byte) (string, error) {
	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}
	return s.baseURL + "/" + path.Clean(key), nil
}

// List returns the keys of every object under the media root.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk media root: %w", err)
	}
	return keys, nil
}

// Remove deletes one object and prunes directories it leaves empty.
func (s *FileStore) Remove(_ context.Context, key string) error {
	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.Remove(dest); err != nil {
		return err
	}
	// Best effort: os.Remove refuses non-empty directories.
	dir := filepath.Dir(dest)
	for dir != s.root {
		if os.Remove(dir) != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

// URLForKey maps a key to the URL Store would have returned for it.
func (s *FileStore) URLForKey(key string) string {
	return s.baseURL + "/" + path.Clean(key)
}

// KeyForURL is the inverse of URLForKey; ok is false for foreign URLs.
func (s *FileStore) KeyForURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}
