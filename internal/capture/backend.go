package capture

import (
	"context"
	"image"
	"image/png"
	"os"

	"github.com/kbinani/screenshot"

	"github.com/snapview/snapview/internal/errors"
)

// Backend produces one rendered frame of its target and persists it as a
// PNG at the given path. The returned path equals outputPath on success.
// How pixels are obtained is entirely the backend's business; callers only
// see success with a path or a typed failure.
type Backend interface {
	Grab(ctx context.Context, outputPath string) (string, error)
}

// provider indirects the screen-capture library so tests can substitute a
// deterministic display layout.
var provider = struct {
	NumDisplays   func() int
	DisplayBounds func(int) image.Rectangle
	CaptureRect   func(image.Rectangle) (*image.RGBA, error)
}{
	NumDisplays:   screenshot.NumActiveDisplays,
	DisplayBounds: screenshot.GetDisplayBounds,
	CaptureRect:   screenshot.CaptureRect,
}

// ForTarget returns the backend for a target. Dispatch is exhaustive over
// the closed Kind set.
func ForTarget(t Target) (Backend, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	switch t.Kind {
	case FullScreen:
		return fullScreenBackend{}, nil
	case Monitor:
		return monitorBackend{index: t.Index}, nil
	case Window:
		return windowBackend{title: t.Title}, nil
	case DirectXSurface:
		return surfaceBackend{title: t.Title}, nil
	case BrowserTab:
		// A browser tab is addressed by its window title; same acquisition
		// path as any other top-level window.
		return windowBackend{title: t.Title}, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidTarget, "unknown capture kind %d", int(t.Kind))
	}
}

// fullScreenBackend captures the primary display.
type fullScreenBackend struct{}

func (fullScreenBackend) Grab(_ context.Context, outputPath string) (string, error) {
	if provider.NumDisplays() == 0 {
		return "", errors.New(errors.CodeCaptureProvider, "no active displays")
	}
	return grabRect(provider.DisplayBounds(0), outputPath)
}

// monitorBackend captures one physical display by 1-based index; the
// provider numbers displays from 0 with the primary first, so index 1 is
// the primary.
type monitorBackend struct {
	index int
}

func (b monitorBackend) Grab(_ context.Context, outputPath string) (string, error) {
	count := provider.NumDisplays()
	if count == 0 {
		return "", errors.New(errors.CodeCaptureProvider, "no active displays")
	}
	if b.index < 1 || b.index > count {
		return "", errors.Newf(errors.CodeInvalidTarget,
			"monitor index %d out of range [1, %d]", b.index, count)
	}
	return grabRect(provider.DisplayBounds(b.index-1), outputPath)
}

// grabRect captures a screen rectangle and writes it as a PNG.
func grabRect(bounds image.Rectangle, outputPath string) (string, error) {
	img, err := provider.CaptureRect(bounds)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeCaptureProvider, "capture rect failed")
	}
	if err := writePNG(img, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// writePNG encodes img to path. Persistence failures never leave a partial
// file behind.
func writePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.CodePersistence, "create output file")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return errors.Wrap(err, errors.CodePersistence, "encode png")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return errors.Wrap(err, errors.CodePersistence, "close output file")
	}
	return nil
}
