package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flipbook/pagepress/internal/config"
	"github.com/flipbook/pagepress/internal/models"
	"github.com/flipbook/pagepress/internal/render"
	"github.com/flipbook/pagepress/internal/repo"
)

var testCfg = config.PipelineConfig{
	PageDPI:      150,
	PageFormat:   "jpeg",
	PageQuality:  85,
	ThumbWidth:   200,
	ThumbHeight:  280,
	ThumbFormat:  "jpeg",
	ThumbQuality: 70,
}

// renderFunc adapts a function to the Renderer interface.
type renderFunc func(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error)

func (f renderFunc) Render(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error) {
	return f(ctx, path, pageNumber, dpi)
}

func okRenderer(w, h int) renderFunc {
	return func(context.Context, string, int, int) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, w, h)), nil
	}
}

// memBlob stores objects in a map and can be scripted to fail per key.
type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  func(key string) bool
}

func newMemBlob() *memBlob {
	return &memBlob{objects: make(map[string][]byte)}
}

func (b *memBlob) Store(_ context.Context, key string, data []byte) (string, error) {
	if b.failOn != nil && b.failOn(key) {
		return "", errors.New("storage write failed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return "/media/" + key, nil
}

// newTestDocument seeds a repository with a document whose source file
// exists on disk.
func newTestDocument(t *testing.T, r *repo.MemoryRepository) *models.Document {
	t.Helper()
	src := filepath.Join(t.TempDir(), "source.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4 stub"), 0o644))

	doc := &models.Document{
		ID:               "doc-1",
		Title:            "A Field Guide",
		SourceFile:       src,
		ProcessingStatus: models.StatusPending,
	}
	require.NoError(t, r.CreateDocument(context.Background(), doc))
	return doc
}

func newTestProcessor(r *repo.MemoryRepository, b *memBlob, renderer Renderer, pages int) *Processor {
	p := NewProcessor(r, b, renderer, testCfg)
	p.pageCount = func(string) (int, error) { return pages, nil }
	p.optimize = func(string, string) error { return errors.New("repair not scripted") }
	return p
}

func TestRunHappyPath(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	b := newMemBlob()
	doc := newTestDocument(t, r)

	p := newTestProcessor(r, b, okRenderer(1000, 1400), 3)
	require.NoError(t, p.Run(ctx, doc.ID))

	got, err := r.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.ProcessingStatus)
	assert.Empty(t, got.ProcessingError)
	assert.Equal(t, 3, got.PageCount)
	assert.Greater(t, got.FileSize, int64(0))
	assert.Equal(t, "/media/thumbnails/doc-1/cover_doc-1.jpg", got.Thumbnail)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, page := range pages {
		assert.Equal(t, i+1, page.PageNumber)
		assert.Equal(t, 1000, page.Width)
		assert.Equal(t, 1400, page.Height)
		assert.NotEmpty(t, page.Image)
		assert.NotEmpty(t, page.Thumbnail)
	}
}

func TestRunDocumentNotFound(t *testing.T) {
	p := newTestProcessor(repo.NewMemory(), newMemBlob(), okRenderer(10, 10), 1)
	err := p.Run(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestRunMissingSourceFile(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := &models.Document{ID: "doc-1", SourceFile: "/nonexistent/source.pdf"}
	require.NoError(t, r.CreateDocument(ctx, doc))

	p := newTestProcessor(r, newMemBlob(), okRenderer(10, 10), 1)
	err := p.Run(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrPermanent)

	got, err := r.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.ProcessingStatus)
	assert.NotEmpty(t, got.ProcessingError)
}

func TestRunCorruptSource(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)

	p := NewProcessor(r, newMemBlob(), okRenderer(10, 10), testCfg)
	p.pageCount = func(string) (int, error) { return 0, errors.New("failed to get page count: xref broken") }
	p.optimize = func(string, string) error { return errors.New("beyond repair") }

	err := p.Run(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrPermanent)

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusFailed, got.ProcessingStatus)
	assert.Contains(t, got.ProcessingError, "xref broken")
}

func TestRunRepairedSource(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)
	original := doc.SourceFile

	// The upload fails the page count until a relaxed rewrite fixes it.
	p := NewProcessor(r, newMemBlob(), okRenderer(100, 140), testCfg)
	p.pageCount = func(path string) (int, error) {
		if path == original {
			return 0, errors.New("failed to get page count: dict malformed")
		}
		return 2, nil
	}
	p.optimize = func(_, outPath string) error {
		return os.WriteFile(outPath, []byte("%PDF-1.4 repaired"), 0o644)
	}

	require.NoError(t, p.Run(ctx, doc.ID))

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.ProcessingStatus)
	assert.Equal(t, 2, got.PageCount)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestRunRecoversRendererPanic(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)

	renderer := renderFunc(func(context.Context, string, int, int) (image.Image, error) {
		panic("renderer blew up")
	})

	p := newTestProcessor(r, newMemBlob(), renderer, 2)
	err := p.Run(ctx, doc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer blew up")

	// The durable status must reach a terminal state even on a panic.
	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusFailed, got.ProcessingStatus)
	assert.Contains(t, got.ProcessingError, "renderer blew up")
}

// failingSaveRepo rejects the page-count persist; every other write goes
// through to the wrapped repository.
type failingSaveRepo struct {
	*repo.MemoryRepository
}

func (r *failingSaveRepo) SaveDocument(ctx context.Context, id string, fields repo.Fields) error {
	if _, ok := fields[models.FieldPageCount]; ok {
		return errors.New("db write failed")
	}
	return r.MemoryRepository.SaveDocument(ctx, id, fields)
}

func TestRunRemovesRepairedCopyOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	mem := repo.NewMemory()
	doc := newTestDocument(t, mem)
	original := doc.SourceFile

	var repairedPath string
	p := NewProcessor(&failingSaveRepo{MemoryRepository: mem}, newMemBlob(), okRenderer(10, 10), testCfg)
	p.pageCount = func(path string) (int, error) {
		if path == original {
			return 0, errors.New("failed to get page count: dict malformed")
		}
		return 2, nil
	}
	p.optimize = func(_, outPath string) error {
		repairedPath = outPath
		return os.WriteFile(outPath, []byte("%PDF-1.4 repaired"), 0o644)
	}

	err := p.Run(ctx, doc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db write failed")

	require.NotEmpty(t, repairedPath)
	_, statErr := os.Stat(repairedPath)
	assert.True(t, os.IsNotExist(statErr), "repaired working copy must not outlive the failed run")
}

func TestRunZeroPageDocument(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)

	p := newTestProcessor(r, newMemBlob(), okRenderer(10, 10), 0)
	require.NoError(t, p.Run(ctx, doc.ID))

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.ProcessingStatus)
	assert.Equal(t, 0, got.PageCount)
	assert.Empty(t, got.Thumbnail)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestRunPageFailureIsolation(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)

	renderer := renderFunc(func(_ context.Context, _ string, pageNumber, _ int) (image.Image, error) {
		if pageNumber == 3 {
			return nil, errors.New("synthetic page render exception")
		}
		return image.NewRGBA(image.Rect(0, 0, 100, 140)), nil
	})

	p := newTestProcessor(r, newMemBlob(), renderer, 5)
	require.NoError(t, p.Run(ctx, doc.ID))

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.ProcessingStatus)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 4)
	numbers := make([]int, len(pages))
	for i, page := range pages {
		numbers[i] = page.PageNumber
	}
	assert.Equal(t, []int{1, 2, 4, 5}, numbers)
}

func TestRunStorageFailureSkipsPage(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)

	b := newMemBlob()
	b.failOn = func(key string) bool {
		return strings.Contains(key, "page_doc-1_2.")
	}

	p := newTestProcessor(r, b, okRenderer(100, 140), 3)
	require.NoError(t, p.Run(ctx, doc.ID))

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, 3, pages[1].PageNumber)
}

func TestRunPlaceholderFallback(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	doc := newTestDocument(t, r)

	// The chain reports total failure; the orchestrator must still produce
	// every page via placeholders and complete the document.
	renderer := renderFunc(func(_ context.Context, _ string, pageNumber, _ int) (image.Image, error) {
		return nil, &render.Failure{Page: pageNumber, Causes: []render.BackendFailure{
			{Backend: "poppler", Kind: render.Unavailable, Err: errors.New("not installed")},
		}}
	})

	p := newTestProcessor(r, newMemBlob(), renderer, 2)
	require.NoError(t, p.Run(ctx, doc.ID))

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, models.StatusCompleted, got.ProcessingStatus)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	wantW, wantH := render.A4Pixels(testCfg.PageDPI)
	for _, page := range pages {
		assert.Equal(t, wantW, page.Width)
		assert.Equal(t, wantH, page.Height)
	}
}

func TestRunIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	b := newMemBlob()
	doc := newTestDocument(t, r)

	p := newTestProcessor(r, b, okRenderer(800, 1120), 2)
	require.NoError(t, p.Run(ctx, doc.ID))
	require.NoError(t, p.Run(ctx, doc.ID))

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, 2, got.PageCount)

	pages, err := r.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2, "rerun must upsert, not duplicate")
	for _, page := range pages {
		assert.Equal(t, 800, page.Width)
		assert.Equal(t, 1120, page.Height)
	}
}

func TestRegenerateCover(t *testing.T) {
	ctx := context.Background()
	r := repo.NewMemory()
	b := newMemBlob()
	doc := newTestDocument(t, r)

	p := newTestProcessor(r, b, okRenderer(500, 700), 2)
	require.NoError(t, p.Run(ctx, doc.ID))

	// Wipe the cover reference and re-derive it.
	require.NoError(t, r.SaveDocument(ctx, doc.ID, repo.Fields{models.FieldThumbnail: ""}))
	require.NoError(t, p.RegenerateCover(ctx, doc.ID))

	got, _ := r.GetDocument(ctx, doc.ID)
	assert.Equal(t, fmt.Sprintf("/media/thumbnails/%s/cover_%s.jpg", doc.ID, doc.ID), got.Thumbnail)
}
