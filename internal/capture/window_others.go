//go:build !windows

package capture

import (
	"context"

	"github.com/snapview/snapview/internal/errors"
)

// Window and surface capture need the win32 window manager; on other
// platforms the backends exist but always report a provider failure.

func (b windowBackend) Grab(_ context.Context, _ string) (string, error) {
	return "", errors.Newf(errors.CodeCaptureProvider,
		"window capture is not supported on this platform (target %q)", b.title)
}

func (b surfaceBackend) Grab(_ context.Context, _ string) (string, error) {
	return "", errors.Newf(errors.CodeCaptureProvider,
		"surface capture is not supported on this platform (target %q)", b.title)
}
