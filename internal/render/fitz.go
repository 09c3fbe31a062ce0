package render

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// probePDF is a minimal one-page document used to verify that the MuPDF
// runtime actually works before the backend is admitted to the chain.
var probePDF = []byte(`%PDF-1.4
1 0 obj
<< /Type /Catalog /Pages 2 0 R >>
endobj
2 0 obj
<< /Type /Pages /Kids [3 0 R] /Count 1 >>
endobj
3 0 obj
<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >>
endobj
trailer
<< /Root 1 0 R /Size 4 >>
%%EOF
`)

// FitzBackend renders pages with go-fitz (MuPDF). It needs no external
// binary, so it is the usual fallback when poppler is absent.
type FitzBackend struct {
	probeOnce sync.Once
	probeErr  error
}

func (b *FitzBackend) Name() string { return "fitz" }

func (b *FitzBackend) Available() error {
	b.probeOnce.Do(func() {
		doc, err := fitz.NewFromMemory(probePDF)
		if err != nil {
			b.probeErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
			return
		}
		doc.Close()
	})
	return b.probeErr
}

func (b *FitzBackend) Render(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	// go-fitz pages are 0-indexed.
	img, err := doc.ImageDPI(pageNumber-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNumber, err)
	}
	return img, nil
}
