package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/flipbook/pagepress/internal/blob"
	"github.com/flipbook/pagepress/internal/repo"
)

func newCleanupCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup-media",
		Short: "Delete stored images no document or page references",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			fileStore, ok := e.blobs.(*blob.FileStore)
			if !ok {
				return fmt.Errorf("cleanup-media only supports the file blob store")
			}
			return cleanupMedia(ctx, e.repo, fileStore, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report orphans without deleting them")
	return cmd
}

func cleanupMedia(ctx context.Context, r repo.Repository, store *blob.FileStore, dryRun bool) error {
	referenced, err := referencedKeys(ctx, r, store)
	if err != nil {
		return err
	}
	keys, err := store.List(ctx)
	if err != nil {
		return err
	}

	removed := 0
	for _, key := range keys {
		if referenced[key] {
			continue
		}
		if dryRun {
			slog.Info("Orphaned object (dry run).", "key", key)
			removed++
			continue
		}
		if err := store.Remove(ctx, key); err != nil {
			slog.Error("Failed to remove orphaned object.", "key", key, "error", err)
			continue
		}
		slog.Info("Removed orphaned object.", "key", key)
		removed++
	}
	slog.Info("Media cleanup finished.", "scanned", len(keys), "orphans", removed, "dryRun", dryRun)
	return nil
}

// referencedKeys collects every media key a document or page still points
// at. URLs from other stores are ignored.
func referencedKeys(ctx context.Context, r repo.Repository, store *blob.FileStore) (map[string]bool, error) {
	referenced := make(map[string]bool)
	add := func(url string) {
		if url == "" {
			return
		}
		if key, ok := store.KeyForURL(url); ok {
			referenced[key] = true
		}
	}

	docs, err := r.ListDocuments(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, doc := range docs {
		add(doc.Thumbnail)
		pages, err := r.ListPages(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list pages for %s: %w", doc.ID, err)
		}
		for _, page := range pages {
			add(page.Image)
			add(page.Thumbnail)
		}
	}
	return referenced, nil
}
