package render

import (
	"context"
	"errors"
	"image"
	"log/slog"
)

// Chain tries a priority-ordered list of backends until one renders the
// page. Availability is probed once at construction; backends that fail the
// probe never get per-page attempts.
type Chain struct {
	backends []Backend
}

// NewChain probes each backend and keeps the available ones in the given
// order. A chain with no available backends is still usable: every Render
// call reports failure and the caller falls back to a placeholder.
func NewChain(backends ...Backend) *Chain {
	available := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if err := b.Available(); err != nil {
			slog.Warn("Render backend unavailable, excluding from chain.", "backend", b.Name(), "error", err)
			continue
		}
		slog.Info("Render backend available.", "backend", b.Name())
		available = append(available, b)
	}
	return &Chain{backends: available}
}

// Backends returns the names of the available backends in priority order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Render returns the first successful raster, or a *Failure describing every
// backend's outcome. It never panics and never returns a nil image alongside
// a nil error.
func (c *Chain) Render(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error) {
	failure := &Failure{Page: pageNumber}
	for _, b := range c.backends {
		img, err := b.Render(ctx, path, pageNumber, dpi)
		if err == nil {
			slog.Debug("Page rendered.", "backend", b.Name(), "page", pageNumber)
			return img, nil
		}
		kind := RenderError
		if errors.Is(err, ErrUnavailable) {
			kind = Unavailable
		}
		slog.Warn("Render backend failed for page, trying next.",
			"backend", b.Name(), "page", pageNumber, "error", err)
		failure.Causes = append(failure.Causes, BackendFailure{Backend: b.Name(), Kind: kind, Err: err})
	}
	return nil, failure
}
