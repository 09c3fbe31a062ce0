package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/flipbook/pagepress/internal/models"
	"github.com/flipbook/pagepress/internal/repo"
)

func secondsDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}

func newReprocessCommand() *cobra.Command {
	var (
		documentID  string
		failedOnly  bool
		all         bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-run the conversion pipeline for existing documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := buildEnv(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			docs, err := selectDocuments(ctx, e.repo, documentID, failedOnly, all)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				slog.Info("No documents matched.")
				return nil
			}
			slog.Info("Reprocessing documents.", "count", len(docs), "concurrency", concurrency)

			var failed atomic.Int64
			eg, gctx := errgroup.WithContext(ctx)
			eg.SetLimit(concurrency)
			for _, doc := range docs {
				doc := doc
				eg.Go(func() error {
					if err := reprocessOne(gctx, e, doc.ID); err != nil {
						// Failures are recorded on the document; keep going.
						slog.Error("Reprocess failed.", "documentId", doc.ID, "error", err)
						failed.Add(1)
					}
					return nil
				})
			}
			_ = eg.Wait()

			succeeded := int64(len(docs)) - failed.Load()
			slog.Info("Reprocess finished.", "succeeded", succeeded, "failed", failed.Load())
			if failed.Load() > 0 {
				return fmt.Errorf("%d of %d documents failed", failed.Load(), len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "document-id", "", "reprocess a specific document")
	cmd.Flags().BoolVar(&failedOnly, "failed-only", false, "only reprocess failed documents")
	cmd.Flags().BoolVar(&all, "all", false, "reprocess every document")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "documents processed in parallel")
	return cmd
}

func selectDocuments(ctx context.Context, r repo.Repository, documentID string, failedOnly, all bool) ([]models.Document, error) {
	switch {
	case documentID != "":
		doc, err := r.GetDocument(ctx, documentID)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", documentID, err)
		}
		return []models.Document{*doc}, nil
	case failedOnly:
		return r.ListDocuments(ctx, models.StatusFailed)
	case all:
		return r.ListDocuments(ctx, "")
	default:
		return nil, fmt.Errorf("specify --document-id, --failed-only or --all")
	}
}

// reprocessOne clears previous pages before re-running so a shrunk page
// count cannot leave stale rows behind.
func reprocessOne(ctx context.Context, e *env, documentID string) error {
	if err := e.repo.DeletePages(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete existing pages: %w", err)
	}
	if err := e.repo.SaveDocument(ctx, documentID, repo.Fields{
		models.FieldProcessingStatus: models.StatusProcessing,
		models.FieldProcessingError:  "",
	}); err != nil {
		return fmt.Errorf("failed to reset document status: %w", err)
	}
	return e.runner.Process(ctx, documentID)
}
