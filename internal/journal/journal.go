// Package journal persists a record of every capture attempt in a local
// SQLite database. Recording is best-effort: a journal failure never fails
// the capture that produced it.
package journal

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snapview/snapview/internal/capture"
	"github.com/snapview/snapview/internal/errors"
	"github.com/snapview/snapview/internal/manager"
	"github.com/snapview/snapview/internal/resilience"
)

const (
	dirMode = 0o755

	// DefaultRecentLimit bounds history queries with no explicit limit.
	DefaultRecentLimit = 50
)

// Entry is one capture attempt, success or failure.
type Entry struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Mode       string `gorm:"index;not null" json:"mode"`
	Detail     string `json:"detail,omitempty"` // monitor index or window title
	Path       string `json:"path,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	Succeeded  bool   `gorm:"index" json:"succeeded"`
	Error      string `json:"error,omitempty"`
	CapturedAt int64  `gorm:"index;autoCreateTime" json:"captured_at"`
}

// BeforeCreate hook to generate UUID
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CapturedAt == 0 {
		e.CapturedAt = time.Now().Unix()
	}
	return nil
}

// Stats summarizes the journal.
type Stats struct {
	Total      int64 `json:"total"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Duplicates int64 `json:"duplicates"`
	LastUnix   int64 `json:"last_captured_at,omitempty"`
}

// Journal records capture attempts. Implements manager.Recorder.
type Journal struct {
	log *slog.Logger
	db  *gorm.DB
}

// Open creates or opens the journal database at path. Opening is retried
// briefly; a locked file from a previous run usually clears within a few
// hundred milliseconds.
func Open(path string, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, errors.Wrapf(err, errors.CodePersistence, "cannot create journal directory for %q", path)
	}

	var db *gorm.DB
	cfg := resilience.RetryConfig{
		MaxRetries:   2,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     500 * time.Millisecond,
		JitterFactor: resilience.DefaultJitterFactor,
		IsRetryable:  func(error) bool { return true },
	}
	err := resilience.Retry(context.Background(), cfg, func() error {
		var openErr error
		db, openErr = gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		return openErr
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodePersistence, "cannot open journal %q", path)
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "journal migration failed")
	}

	log.Info("capture journal opened", "path", path)
	return &Journal{log: log, db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores one attempt. Failures are logged and swallowed so the
// capture path never depends on the journal being healthy.
func (j *Journal) Record(ctx context.Context, target capture.Target, outcome *manager.Outcome, attemptErr error) {
	entry := Entry{
		Mode:   target.ModeName(),
		Detail: targetDetail(target),
	}
	if outcome != nil {
		entry.Succeeded = true
		entry.Path = outcome.Path
		entry.Width = outcome.Width
		entry.Height = outcome.Height
		entry.Duplicate = outcome.Duplicate
		entry.CapturedAt = outcome.CapturedAt.Unix()
	}
	if attemptErr != nil {
		entry.Error = attemptErr.Error()
	}

	if err := j.db.WithContext(ctx).Create(&entry).Error; err != nil {
		j.log.Error("journal record failed", "mode", entry.Mode, "error", err)
	}
}

// Recent returns the latest n attempts, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	var entries []Entry
	err := j.db.WithContext(ctx).
		Order("captured_at DESC, id").
		Limit(n).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.CodePersistence, "journal query failed")
	}
	return entries, nil
}

// Stats aggregates the journal's contents.
func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	db := j.db.WithContext(ctx).Model(&Entry{})

	if err := db.Count(&s.Total).Error; err != nil {
		return Stats{}, errors.Wrap(err, errors.CodePersistence, "journal stats failed")
	}
	if err := db.Where("succeeded = ?", true).Count(&s.Succeeded).Error; err != nil {
		return Stats{}, errors.Wrap(err, errors.CodePersistence, "journal stats failed")
	}
	s.Failed = s.Total - s.Succeeded
	if err := j.db.WithContext(ctx).Model(&Entry{}).
		Where("duplicate = ?", true).Count(&s.Duplicates).Error; err != nil {
		return Stats{}, errors.Wrap(err, errors.CodePersistence, "journal stats failed")
	}

	var last Entry
	err := j.db.WithContext(ctx).Order("captured_at DESC").First(&last).Error
	switch {
	case err == nil:
		s.LastUnix = last.CapturedAt
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		// empty journal
	default:
		return Stats{}, errors.Wrap(err, errors.CodePersistence, "journal stats failed")
	}
	return s, nil
}

func targetDetail(t capture.Target) string {
	switch t.Kind {
	case capture.Monitor:
		return strconv.Itoa(t.Index)
	case capture.Window, capture.DirectXSurface, capture.BrowserTab:
		return t.Title
	default:
		return ""
	}
}
