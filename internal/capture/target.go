// Package capture provides capture targets and the backends that render
// them to PNG files.
package capture

import (
	"fmt"
	"strings"

	"github.com/snapview/snapview/internal/errors"
)

// Kind enumerates the capture sources. The set is closed; dispatch over it
// is exhaustive so a new source is a compile-time extension.
type Kind int

const (
	FullScreen Kind = iota
	Monitor
	Window
	DirectXSurface
	BrowserTab
)

// String returns the human-readable mode name.
func (k Kind) String() string {
	switch k {
	case FullScreen:
		return "Full Screen"
	case Monitor:
		return "Specific Monitor"
	case Window:
		return "Specific Window"
	case DirectXSurface:
		return "DirectX Surface"
	case BrowserTab:
		return "Browser Tab"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a mode name (as found in settings) back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch normalizeMode(s) {
	case "fullscreen":
		return FullScreen, nil
	case "specificmonitor":
		return Monitor, nil
	case "specificwindow":
		return Window, nil
	case "directxsurface":
		return DirectXSurface, nil
	case "browsertab":
		return BrowserTab, nil
	default:
		return FullScreen, errors.Newf(errors.CodeInvalidTarget, "unknown capture mode %q", s)
	}
}

// normalizeMode strips everything but alphanumerics and lower-cases, the
// same filter used for canonical file names.
func normalizeMode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}

// Target describes what to capture. Immutable once selected for an attempt.
type Target struct {
	Kind  Kind
	Index int    // Monitor only; 1-based
	Title string // Window, DirectXSurface, BrowserTab
}

// NewFullScreen targets the primary display.
func NewFullScreen() Target { return Target{Kind: FullScreen} }

// NewMonitor targets the display at the given 1-based index.
func NewMonitor(index int) Target { return Target{Kind: Monitor, Index: index} }

// NewWindow targets the top-level window with the exact title.
func NewWindow(title string) Target { return Target{Kind: Window, Title: title} }

// NewDirectXSurface targets the rendered surface of the named window.
func NewDirectXSurface(title string) Target { return Target{Kind: DirectXSurface, Title: title} }

// NewBrowserTab targets a browser tab by its window title.
func NewBrowserTab(title string) Target { return Target{Kind: BrowserTab, Title: title} }

// ModeName returns the alphanumeric-filtered, lower-cased mode name used
// for canonical file naming (e.g. "fullscreen", "specificmonitor").
func (t Target) ModeName() string {
	return normalizeMode(t.Kind.String())
}

// Validate checks target fields that can be rejected without a provider.
func (t Target) Validate() error {
	switch t.Kind {
	case FullScreen:
		return nil
	case Monitor:
		// Indices are 1-based; the upper bound is checked against the live
		// display count at capture time.
		if t.Index < 1 {
			return errors.Newf(errors.CodeInvalidTarget, "monitor index %d out of range", t.Index)
		}
		return nil
	case Window, DirectXSurface, BrowserTab:
		if t.Title == "" {
			return errors.New(errors.CodeInvalidTarget, "window title must not be empty")
		}
		return nil
	default:
		return errors.Newf(errors.CodeInvalidTarget, "unknown capture kind %d", int(t.Kind))
	}
}
