package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrUnavailable marks a backend that cannot run in this deployment (missing
// binary, missing native library). Backends return it wrapped so the chain
// can tell capability gaps apart from render errors.
var ErrUnavailable = errors.New("render backend unavailable")

// Backend is a single rendering capability: render page N of the document at
// path to an RGB raster at the given DPI. Availability is bounded and
// possibly absent; Available is probed once when the chain is built.
type Backend interface {
	Name() string
	Available() error
	Render(ctx context.Context, path string, pageNumber, dpi int) (image.Image, error)
}

// FailureKind classifies why a backend did not produce a raster.
type FailureKind int

const (
	// Unavailable means the backend cannot run at all in this environment.
	Unavailable FailureKind = iota
	// RenderError means the backend ran but failed on this page.
	RenderError
)

// BackendFailure records one backend's failure for a page.
type BackendFailure struct {
	Backend string
	Kind    FailureKind
	Err     error
}

// Failure aggregates every backend's failure for a single page. The chain
// returns it instead of raising; the caller decides whether to fall back to
// a placeholder.
type Failure struct {
	Page   int
	Causes []BackendFailure
}

func (f *Failure) Error() string {
	if len(f.Causes) == 0 {
		return fmt.Sprintf("page %d: no render backends configured", f.Page)
	}
	parts := make([]string, len(f.Causes))
	for i, c := range f.Causes {
		parts[i] = fmt.Sprintf("%s: %v", c.Backend, c.Err)
	}
	return fmt.Sprintf("page %d: all render backends failed: %s", f.Page, strings.Join(parts, "; "))
}
