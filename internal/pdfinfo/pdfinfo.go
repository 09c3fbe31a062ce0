// Package pdfinfo answers structural questions about a source PDF without
// rendering it.
package pdfinfo

import (
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCount returns the number of pages in the PDF at path. A missing,
// empty or unparseable file is reported as an error; the caller treats these
// as permanent failures since retrying cannot fix a corrupt source.
func PageCount(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("source file not readable: %w", err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("source file %s is empty", path)
	}

	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// Optimize validates and rewrites a PDF with relaxed validation, tolerating
// the mildly broken files real uploads contain. The optimized copy is what
// the render backends consume.
func Optimize(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(inPath, outPath, cfg); err != nil {
		return fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	return nil
}
