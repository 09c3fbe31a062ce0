// Package pipeline drives one document end to end: page-count discovery,
// per-page render + encode + persist, cover derivation and document state
// transitions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flipbook/pagepress/internal/blob"
	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/imaging"
	"github.com/flipbook/pagepress/internal/models"
	"github.com/flipbook/pagepress/internal/pdfinfo"
	"github.com/flipbook/pagepress/internal/render"
	"github.com/flipbook/pagepress/internal/repo"
)

// Renderer is the slice of the fallback chain the orchestrator needs.
type Renderer interface {
	Render(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error)
}

// Processor converts one document's source PDF into page images. A Processor
// is safe for concurrent use across distinct documents; concurrent runs for
// the same document id are a caller error the pipeline does not prevent.
type Processor struct {
	repo     repo.Repository
	blobs    blob.Store
	renderer Renderer
	cfg      config.PipelineConfig

	// pageCount and optimize are injectable so tests can script structural
	// discovery and source repair.
	pageCount func(path string) (int, error)
	optimize  func(inPath, outPath string) error
}

// NewProcessor wires the orchestrator's collaborators.
func NewProcessor(r repo.Repository, b blob.Store, renderer Renderer, cfg config.PipelineConfig) *Processor {
	return &Processor{
		repo:      r,
		blobs:     b,
		renderer:  renderer,
		cfg:       cfg,
		pageCount: pdfinfo.PageCount,
		optimize:  pdfinfo.Optimize,
	}
}

// Run executes the conversion state machine for one document.
//
// Per-page failures are contained: a bad page is logged and skipped, never
// aborting the document. Document-level failures transition the record to
// Failed with the reason persisted, then surface to the retry wrapper.
func (p *Processor) Run(ctx context.Context, documentID string) (err error) {
	log := slog.With("documentId", documentID)

	// A panicking backend or store must not strand the document in
	// Processing; consumers poll that field and nothing else would ever
	// move it to a terminal state.
	defer func() {
		if r := recover(); r != nil {
			err = p.fail(ctx, log, documentID, fmt.Errorf("panic during processing: %v", r))
		}
	}()

	doc, err := p.repo.GetDocument(ctx, documentID)
	if errors.Is(err, repo.ErrNotFound) {
		// No record to transition; retrying cannot create one.
		return Permanent(fmt.Errorf("document %s not found", documentID))
	}
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	log.Info("Processing document.", "title", doc.Title)

	// Persist the Processing transition before any heavy work so concurrent
	// status polls observe it immediately.
	if err := p.repo.SaveDocument(ctx, documentID, repo.Fields{
		models.FieldProcessingStatus: models.StatusProcessing,
	}); err != nil {
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	originalSource := doc.SourceFile
	pageCount, err := p.discover(ctx, doc)
	if err != nil {
		return p.fail(ctx, log, documentID, err)
	}
	if doc.SourceFile != originalSource {
		// discover swapped in a repaired working copy; it is not the upload.
		defer os.Remove(doc.SourceFile)
		log.Info("Rendering from repaired source copy.", "path", doc.SourceFile)
	}
	log.Info("Resolved page count.", "pageCount", pageCount)

	coverThumb := p.processPages(ctx, log, doc, pageCount)
	p.storeCover(ctx, log, doc, coverThumb)

	if err := p.repo.SaveDocument(ctx, documentID, repo.Fields{
		models.FieldProcessingStatus: models.StatusCompleted,
		models.FieldProcessingError:  "",
	}); err != nil {
		return p.fail(ctx, log, documentID, fmt.Errorf("failed to mark document completed: %w", err))
	}
	log.Info("Document processed successfully.", "pageCount", pageCount)
	return nil
}

// discover resolves the page count and file size from the source file and
// persists both. Structural errors are permanent: a corrupt file fails
// identically on every attempt.
func (p *Processor) discover(ctx context.Context, doc *models.Document) (int, error) {
	originalSource := doc.SourceFile
	info, err := os.Stat(doc.SourceFile)
	if err != nil {
		return 0, Permanent(fmt.Errorf("source file not found: %w", err))
	}

	count, err := p.pageCount(doc.SourceFile)
	if err != nil {
		// Mildly broken uploads often survive a relaxed rewrite. Retry the
		// count against a repaired copy before declaring the file corrupt.
		repaired := filepath.Join(os.TempDir(), fmt.Sprintf("pagepress_repair_%s.pdf", doc.ID))
		if rerr := p.optimize(doc.SourceFile, repaired); rerr != nil {
			return 0, Permanent(err)
		}
		count, err = p.pageCount(repaired)
		if err != nil {
			os.Remove(repaired)
			return 0, Permanent(err)
		}
		doc.SourceFile = repaired
	}

	if err := p.repo.SaveDocument(ctx, doc.ID, repo.Fields{
		models.FieldPageCount: count,
		models.FieldFileSize:  info.Size(),
	}); err != nil {
		if doc.SourceFile != originalSource {
			os.Remove(doc.SourceFile)
			doc.SourceFile = originalSource
		}
		return 0, fmt.Errorf("failed to persist page count: %w", err)
	}
	doc.PageCount = count
	return count, nil
}

// processPages renders and persists pages 1..pageCount in order, isolating
// per-page failures. It returns the encoded thumbnail of page 1 for cover
// derivation, or nil if page 1 did not survive.
func (p *Processor) processPages(ctx context.Context, log *slog.Logger, doc *models.Document, pageCount int) []byte {
	var coverThumb []byte
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		thumb, err := p.processPage(ctx, doc, pageNum)
		if err != nil {
			// The page row is simply absent; an accepted gap.
			log.Error("Failed to process page, skipping.", "page", pageNum, "error", err)
			continue
		}
		if pageNum == 1 {
			coverThumb = thumb
		}
		log.Info("Processed page.", "page", pageNum, "pageCount", pageCount)
	}
	return coverThumb
}

// processPage renders one page (falling back to a placeholder when every
// backend fails), encodes the image and thumbnail, persists both blobs and
// upserts the page row. It returns the encoded thumbnail bytes.
func (p *Processor) processPage(ctx context.Context, doc *models.Document, pageNum int) ([]byte, error) {
	img, err := p.renderer.Render(ctx, doc.SourceFile, pageNum, p.cfg.PageDPI)
	if err != nil {
		var failure *render.Failure
		if !errors.As(err, &failure) {
			return nil, err
		}
		// Capability gap, not a page failure: a placeholder keeps the
		// page-count invariant intact.
		slog.Warn("All render backends failed, using placeholder.",
			"documentId", doc.ID, "page", pageNum, "error", failure)
		w, h := render.A4Pixels(p.cfg.PageDPI)
		img = render.Placeholder(pageNum, w, h)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pageBytes, err := imaging.Encode(img, p.cfg.PageFormat, p.cfg.PageQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}
	thumbImg := imaging.Thumbnail(img, p.cfg.ThumbWidth, p.cfg.ThumbHeight)
	thumbBytes, err := imaging.Encode(thumbImg, p.cfg.ThumbFormat, p.cfg.ThumbQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	imageKey := fmt.Sprintf("pages/%s/page_%s_%d.%s", doc.ID, doc.ID, pageNum, formatExt(p.cfg.PageFormat))
	imageURL, err := p.blobs.Store(ctx, imageKey, pageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to store page image: %w", err)
	}
	thumbKey := fmt.Sprintf("page_thumbnails/%s/thumb_%s_%d.%s", doc.ID, doc.ID, pageNum, formatExt(p.cfg.ThumbFormat))
	thumbURL, err := p.blobs.Store(ctx, thumbKey, thumbBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to store page thumbnail: %w", err)
	}

	err = p.repo.UpsertPage(ctx, &models.Page{
		DocumentID: doc.ID,
		PageNumber: pageNum,
		Image:      imageURL,
		Thumbnail:  thumbURL,
		Width:      width,
		Height:     height,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert page row: %w", err)
	}
	return thumbBytes, nil
}

// storeCover derives the document cover from page 1's thumbnail. Failure
// here is logged but never fatal.
func (p *Processor) storeCover(ctx context.Context, log *slog.Logger, doc *models.Document, coverThumb []byte) {
	if coverThumb == nil {
		return
	}
	coverKey := fmt.Sprintf("thumbnails/%s/cover_%s.%s", doc.ID, doc.ID, formatExt(p.cfg.ThumbFormat))
	coverURL, err := p.blobs.Store(ctx, coverKey, coverThumb)
	if err != nil {
		log.Error("Failed to store cover thumbnail.", "error", err)
		return
	}
	if err := p.repo.SaveDocument(ctx, doc.ID, repo.Fields{
		models.FieldThumbnail: coverURL,
	}); err != nil {
		log.Error("Failed to persist cover thumbnail reference.", "error", err)
		return
	}
	log.Info("Generated cover thumbnail.")
}

// RegenerateCover re-derives the cover thumbnail from page 1 without a full
// reprocess.
func (p *Processor) RegenerateCover(ctx context.Context, documentID string) error {
	log := slog.With("documentId", documentID)
	doc, err := p.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.PageCount == 0 {
		return fmt.Errorf("document %s has no pages", documentID)
	}
	thumb, err := p.processPage(ctx, doc, 1)
	if err != nil {
		return fmt.Errorf("failed to re-render first page: %w", err)
	}
	p.storeCover(ctx, log, doc, thumb)
	return nil
}

// fail persists the Failed transition with the error detail, then returns
// the error so the retry wrapper can count the attempt.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, documentID string, cause error) error {
	log.Error("Document processing failed.", "error", cause)
	if err := p.repo.SaveDocument(ctx, documentID, repo.Fields{
		models.FieldProcessingStatus: models.StatusFailed,
		models.FieldProcessingError:  cause.Error(),
	}); err != nil {
		log.Error("CRITICAL: Failed to persist Failed status after a processing error.", "updateError", err)
	}
	return cause
}

func formatExt(format string) string {
	if strings.EqualFold(format, "jpeg") {
		return "jpg"
	}
	return strings.ToLower(format)
}
