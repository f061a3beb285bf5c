// Package scheduler drives periodic capture attempts. It is the only
// source of concurrency on the capture path: one goroutine, one firing at
// a time.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snapview/snapview/internal/capture"
	"github.com/snapview/snapview/internal/manager"
	"github.com/snapview/snapview/internal/resilience"
	"github.com/snapview/snapview/internal/trace"
)

// Scheduler configuration constants
const (
	// DefaultInterval between firings.
	DefaultInterval = 3 * time.Second

	// Outcome channel buffer; consumers that fall behind lose events
	// rather than stalling the capture timeline.
	OutcomeBuffer = 16
)

// Capturer is the manager surface the scheduler drives.
type Capturer interface {
	Target() capture.Target
	CaptureAndSave(ctx context.Context, backend capture.Backend) (*manager.Outcome, error)
}

// Scheduler fires CaptureAndSave at a fixed interval. Two states: idle and
// running. Firings are strictly sequential; a manual trigger shares the
// same exclusion as the ticker loop, so overlapping captures against the
// same canonical path cannot happen.
type Scheduler struct {
	log      *slog.Logger
	capturer Capturer
	breaker  *resilience.Breaker
	outcomes chan *manager.Outcome

	mu       sync.Mutex
	interval time.Duration
	running  bool
	stopCh   chan struct{}

	// fireMu serializes captures across the ticker loop and CaptureNow.
	fireMu sync.Mutex
}

// New creates an idle scheduler.
func New(log *slog.Logger, capturer Capturer, interval time.Duration) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		log:      log,
		capturer: capturer,
		interval: interval,
		outcomes: make(chan *manager.Outcome, OutcomeBuffer),
	}
	s.breaker = resilience.New(resilience.SlowConfig()).WithHook(func(from, to resilience.State) {
		s.log.Info("capture breaker state change", "from", from.String(), "to", to.String())
	})
	return s
}

// Outcomes returns the channel of successful, non-duplicate captures.
func (s *Scheduler) Outcomes() <-chan *manager.Outcome {
	return s.outcomes
}

// Interval returns the firing interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval changes the firing interval. Takes effect on the next Start.
func (s *Scheduler) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// Running reports whether the scheduler is in the running state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start transitions idle -> running. Starting a running scheduler is a
// logged no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler already running, start ignored")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	interval := s.interval
	s.mu.Unlock()

	s.log.Info("scheduler started", "interval", interval)
	go s.run(ctx, stopCh, interval)
}

// Stop transitions running -> idle. An in-flight capture completes; only
// the next firing is cancelled. Stopping an idle scheduler is a logged
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler not running, stop ignored")
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
	s.mu.Unlock()

	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.fire(ctx, false)
		}
	}
}

// CaptureNow performs one manual capture attempt, serialized with the
// periodic loop. Works in both states.
func (s *Scheduler) CaptureNow(ctx context.Context) (*manager.Outcome, error) {
	return s.fire(ctx, true)
}

// fire runs a single capture through the circuit breaker. Scheduled
// firings respect an open breaker (persistent provider failure stops
// hammering the backend); manual triggers bypass it.
func (s *Scheduler) fire(ctx context.Context, manual bool) (*manager.Outcome, error) {
	s.fireMu.Lock()
	defer s.fireMu.Unlock()

	if manual {
		return s.capture(ctx)
	}

	var outcome *manager.Outcome
	err := s.breaker.Execute(func() error {
		var captureErr error
		outcome, captureErr = s.capture(ctx)
		return captureErr
	})
	if err == resilience.ErrOpen {
		s.log.Debug("skipping scheduled capture", "reason", err)
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Scheduler) capture(ctx context.Context) (*manager.Outcome, error) {
	ctx, span := trace.StartSpan(ctx, "capture_firing")
	defer span.End()

	backend, err := capture.ForTarget(s.capturer.Target())
	if err != nil {
		span.SetAttr("error", err.Error())
		s.log.Error("cannot build capture backend", "error", err)
		return nil, err
	}

	outcome, err := s.capturer.CaptureAndSave(ctx, backend)
	if err != nil {
		// Already logged and recorded by the manager; the cadence continues.
		span.SetAttr("error", err.Error())
		return nil, err
	}
	span.SetAttr("path", outcome.Path)

	s.publish(outcome)
	return outcome, nil
}

// publish forwards a successful outcome to consumers. Duplicates are
// persisted by the manager but not re-broadcast; a full channel drops.
func (s *Scheduler) publish(outcome *manager.Outcome) {
	if outcome.Duplicate {
		s.log.Debug("suppressing duplicate capture broadcast", "path", outcome.Path)
		return
	}
	select {
	case s.outcomes <- outcome:
	default:
		s.log.Debug("outcome channel full, dropping event")
	}
}
