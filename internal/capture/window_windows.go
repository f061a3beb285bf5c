//go:build windows

package capture

import (
	"context"
	"image"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/snapview/snapview/internal/errors"
	"github.com/snapview/snapview/internal/resilience"
)

var (
	user32            = windows.NewLazySystemDLL("user32.dll")
	procFindWindowW   = user32.NewProc("FindWindowW")
	procGetWindowRect = user32.NewProc("GetWindowRect")
	procSetForeground = user32.NewProc("SetForegroundWindow")
	procShowWindow    = user32.NewProc("ShowWindow")
	procIsIconic      = user32.NewProc("IsIconic")
)

const swRestore = 9

type winRect struct {
	Left, Top, Right, Bottom int32
}

// findWindow resolves a top-level window handle by exact title.
func findWindow(title string) (windows.Handle, error) {
	p, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInvalidTarget, "invalid window title")
	}
	hwnd, _, _ := procFindWindowW.Call(0, uintptr(unsafe.Pointer(p)))
	if hwnd == 0 {
		return 0, errors.Newf(errors.CodeTargetNotFound, "no window titled %q", title)
	}
	return windows.Handle(hwnd), nil
}

// raiseWindow restores a minimized window and brings it to the foreground
// so the captured rectangle shows its content rather than whatever covers it.
func raiseWindow(hwnd windows.Handle) {
	if iconic, _, _ := procIsIconic.Call(uintptr(hwnd)); iconic != 0 {
		procShowWindow.Call(uintptr(hwnd), swRestore)
	}
	procSetForeground.Call(uintptr(hwnd))
}

// windowRect returns the window's bounding rectangle in screen coordinates.
func windowRect(hwnd windows.Handle) (image.Rectangle, error) {
	var r winRect
	ret, _, _ := procGetWindowRect.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&r)))
	if ret == 0 {
		return image.Rectangle{}, errors.New(errors.CodeCaptureProvider, "GetWindowRect failed")
	}
	rect := image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return image.Rectangle{}, errors.New(errors.CodeCaptureProvider, "window has empty bounds")
	}
	return rect, nil
}

func (b windowBackend) Grab(_ context.Context, outputPath string) (string, error) {
	hwnd, err := findWindow(b.title)
	if err != nil {
		return "", err
	}
	raiseWindow(hwnd)
	rect, err := windowRect(hwnd)
	if err != nil {
		return "", err
	}
	return grabRect(rect, outputPath)
}

// frameGrabber holds an attached window for repeated frame pulls.
type frameGrabber struct {
	hwnd windows.Handle
	rect image.Rectangle
}

// attach resolves the named window and measures its surface. Resolution is
// retried briefly: games recreate their swap-chain window on mode changes
// and the title can be momentarily absent.
func attach(ctx context.Context, title string) (*frameGrabber, error) {
	var g frameGrabber
	err := resilience.Retry(ctx, resilience.GrabberRetryConfig(), func() error {
		hwnd, err := findWindow(title)
		if err != nil {
			// Not retryable by code; wrap as transient for the attach window.
			return errors.Wrap(err, errors.CodeUnavailable, "surface not yet available")
		}
		rect, err := windowRect(hwnd)
		if err != nil {
			return err
		}
		g.hwnd, g.rect = hwnd, rect
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeTargetNotFound, "cannot attach to surface %q", title)
	}
	return &g, nil
}

// frame pulls one frame from the attached surface.
func (g *frameGrabber) frame() (*image.RGBA, error) {
	img, err := provider.CaptureRect(g.rect)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeCaptureProvider, "frame grab failed")
	}
	return img, nil
}

func (b surfaceBackend) Grab(ctx context.Context, outputPath string) (string, error) {
	g, err := attach(ctx, b.title)
	if err != nil {
		return "", err
	}
	raiseWindow(g.hwnd)
	img, err := g.frame()
	if err != nil {
		return "", err
	}
	if err := writePNG(img, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
