package manager

import (
	"context"
	"fmt"
	"image"
	_ "image/png" // PNG decoder
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/snapview/snapview/internal/capture"
	"github.com/snapview/snapview/internal/errors"
	"github.com/snapview/snapview/internal/syncx"
)

// Recorder receives the result of every capture attempt, success or
// failure. Implemented by the journal; nil disables recording.
type Recorder interface {
	Record(ctx context.Context, target capture.Target, outcome *Outcome, attemptErr error)
}

// state is the manager's configuration, replaced atomically on Configure.
type state struct {
	policy        Policy
	dir           string
	target        capture.Target
	canonicalName string
}

// Manager owns the persistence policy, selects output paths, and absorbs
// every backend and I/O failure into a typed "no outcome" result. All
// collaborators are injected; the manager holds no package-global state.
type Manager struct {
	log      *slog.Logger
	st       *syncx.Guard[state]
	recorder Recorder

	mu       sync.Mutex
	dedup    bool
	lastHash *goimagehash.ImageHash
	latest   *Outcome
}

// New creates a manager logging through log. Configure must be called
// before the first capture.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log, st: syncx.NewGuard(state{})}
}

// WithRecorder attaches an attempt recorder.
func (m *Manager) WithRecorder(r Recorder) *Manager {
	m.recorder = r
	return m
}

// SetDedup enables perceptual-hash duplicate marking on outcomes.
func (m *Manager) SetDedup(enabled bool) {
	m.mu.Lock()
	m.dedup = enabled
	if !enabled {
		m.lastHash = nil
	}
	m.mu.Unlock()
}

// Configure validates and installs a new persistence configuration. The
// output directory is created here, never at capture time, so every later
// attempt can assume it exists. Fails with a configuration error; the
// previous configuration stays in effect.
func (m *Manager) Configure(policy Policy, dir string, target capture.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if dir == "" {
		return errors.New(errors.CodeConfiguration, "output directory must not be empty")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrapf(err, errors.CodeConfiguration, "cannot create output directory %q", dir)
	}
	// Probe writability now rather than discovering it on the first capture.
	probe, err := os.CreateTemp(dir, tmpPrefix+"probe-*")
	if err != nil {
		return errors.Wrapf(err, errors.CodeConfiguration, "output directory %q is not writable", dir)
	}
	probe.Close()
	os.Remove(probe.Name())

	prev := m.st.Swap(state{
		policy:        policy,
		dir:           dir,
		target:        target,
		canonicalName: target.ModeName() + ".png",
	})
	if prev.dir != "" && prev.target.Kind != target.Kind {
		m.log.Info("capture mode changed",
			"from", prev.target.Kind.String(), "to", target.Kind.String())
	}
	m.log.Info("capture manager configured",
		"policy", policy.String(), "dir", dir, "mode", target.Kind.String())
	return nil
}

// Target returns the currently configured capture target.
func (m *Manager) Target() capture.Target {
	return m.st.Get().target
}

// Policy returns the currently configured persistence policy.
func (m *Manager) Policy() Policy {
	return m.st.Get().policy
}

// Dir returns the configured output directory.
func (m *Manager) Dir() string {
	return m.st.Get().dir
}

// CanonicalPath returns the single-slot path for the active mode. Under
// TimestampedHistory this still names the most natural "latest" location
// for readers that only understand one path.
func (m *Manager) CanonicalPath() string {
	s := m.st.Get()
	if s.dir == "" {
		return ""
	}
	return filepath.Join(s.dir, s.canonicalName)
}

// Latest returns the most recent successful outcome, nil before the first.
func (m *Manager) Latest() *Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest
}

// CaptureAndSave runs one capture attempt through backend. The backend
// writes to a temporary file inside the output directory; on success the
// file is atomically renamed to its destination so a concurrent HTTP reader
// never observes a partial PNG. Every failure is logged and recorded and
// returns (nil, err) - there are no partially populated outcomes.
func (m *Manager) CaptureAndSave(ctx context.Context, backend capture.Backend) (*Outcome, error) {
	s := m.st.Get()
	if s.dir == "" {
		err := errors.New(errors.CodeConfiguration, "manager is not configured")
		m.log.Error("capture attempt before configuration")
		return nil, err
	}

	tmp := filepath.Join(s.dir, fmt.Sprintf("%s%s-%d.png", tmpPrefix, s.target.ModeName(), time.Now().UnixNano()))

	written, err := backend.Grab(ctx, tmp)
	if err != nil {
		os.Remove(tmp)
		m.logAttemptFailure(err)
		m.record(ctx, s.target, nil, err)
		return nil, err
	}

	width, height, err := measurePNG(written)
	if err != nil {
		os.Remove(written)
		m.log.Error("capture produced unreadable image", "path", written, "error", err)
		m.record(ctx, s.target, nil, err)
		return nil, err
	}

	now := time.Now()
	dest := filepath.Join(s.dir, s.canonicalName)
	if s.policy == TimestampedHistory {
		dest = filepath.Join(s.dir, now.Format(TimestampLayout)+".png")
	}

	if err := os.Rename(written, dest); err != nil {
		os.Remove(written)
		perr := errors.Wrapf(err, errors.CodePersistence, "cannot move capture into %q", dest)
		m.logAttemptFailure(perr)
		m.record(ctx, s.target, nil, perr)
		return nil, perr
	}

	outcome := &Outcome{
		Path:       dest,
		Width:      width,
		Height:     height,
		CapturedAt: now,
		Duplicate:  m.markDuplicate(dest),
	}

	m.mu.Lock()
	m.latest = outcome
	m.mu.Unlock()

	m.log.Info("capture saved",
		"path", dest, "width", width, "height", height, "duplicate", outcome.Duplicate)
	m.record(ctx, s.target, outcome, nil)
	return outcome, nil
}

// logAttemptFailure logs at warning for missing targets (expected churn)
// and error for everything else.
func (m *Manager) logAttemptFailure(err error) {
	if errors.IsCode(err, errors.CodeTargetNotFound) {
		m.log.Warn("capture target not found", "error", err)
		return
	}
	m.log.Error("capture attempt failed", "error", err)
}

func (m *Manager) record(ctx context.Context, target capture.Target, outcome *Outcome, err error) {
	if m.recorder != nil {
		m.recorder.Record(ctx, target, outcome, err)
	}
}

// markDuplicate compares the saved image's perceptual hash with the
// previous capture's. Hash failures never fail the capture; they just
// reset the comparison.
func (m *Manager) markDuplicate(path string) bool {
	m.mu.Lock()
	enabled := m.dedup
	m.mu.Unlock()
	if !enabled {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return false
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.lastHash
	m.lastHash = hash
	if prev == nil {
		return false
	}
	dist, err := prev.Distance(hash)
	if err != nil {
		return false
	}
	return dist <= MaxHashDistance
}

// measurePNG reads the actual dimensions of the written image.
func measurePNG(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CodePersistence, "open capture for measurement")
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CodePersistence, "decode capture header")
	}
	return cfg.Width, cfg.Height, nil
}
