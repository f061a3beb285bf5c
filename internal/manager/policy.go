package manager

import (
	"strings"
	"time"

	"github.com/snapview/snapview/internal/errors"
)

// Policy selects how successful captures are persisted.
type Policy int

const (
	// ReuseSingleFile overwrites one canonical path derived from the
	// capture mode. "Reuse" means reuse the path, never stale content:
	// the backend runs on every attempt.
	ReuseSingleFile Policy = iota
	// TimestampedHistory writes each capture to a new second-precision
	// timestamped path.
	TimestampedHistory
)

// String returns the policy's settings name.
func (p Policy) String() string {
	if p == TimestampedHistory {
		return "history"
	}
	return "reuse"
}

// ParsePolicy maps a settings value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reuse", "reusesinglefile", "":
		return ReuseSingleFile, nil
	case "history", "timestampedhistory":
		return TimestampedHistory, nil
	default:
		return ReuseSingleFile, errors.Newf(errors.CodeConfiguration, "unknown persistence policy %q", s)
	}
}

// Outcome is the result of one successful capture attempt. Created once,
// never mutated; the next attempt supersedes it.
type Outcome struct {
	Path       string    `json:"path"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
	// Duplicate marks a capture perceptually identical to the previous
	// one. It is still persisted; consumers may skip re-rendering it.
	Duplicate bool `json:"duplicate,omitempty"`
}

// TimestampString renders CapturedAt in the history file-name format.
func (o *Outcome) TimestampString() string {
	return o.CapturedAt.Format(TimestampLayout)
}
