package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
)

// PopplerBackend renders pages by shelling out to poppler's pdftoppm. It is
// the preferred backend when the binary is installed because poppler's output
// quality is the best of the chain.
type PopplerBackend struct {
	// Binary overrides the pdftoppm executable name. Empty means "pdftoppm"
	// resolved from PATH.
	Binary string
}

func (b *PopplerBackend) Name() string { return "poppler" }

func (b *PopplerBackend) binary() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "pdftoppm"
}

func (b *PopplerBackend) Available() error {
	if _, err := exec.LookPath(b.binary()); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *PopplerBackend) Render(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error) {
	// With no output root pdftoppm writes the single requested page to
	// stdout.
	cmd := exec.CommandContext(ctx, b.binary(),
		"-png",
		"-r", strconv.Itoa(dpi),
		"-f", strconv.Itoa(pageNumber),
		"-l", strconv.Itoa(pageNumber),
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %v (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pdftoppm output for page %d: %w", pageNumber, err)
	}
	return img, nil
}
