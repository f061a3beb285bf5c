package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/snapview/snapview/internal/capture"
	"github.com/snapview/snapview/internal/journal"
	"github.com/snapview/snapview/internal/manager"
	"github.com/snapview/snapview/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a configured manager and an idle scheduler behind a
// server. jrnl may be nil.
func newTestServer(t *testing.T, jrnl *journal.Journal) (*Server, *manager.Manager) {
	t.Helper()
	log := testLogger()
	mgr := manager.New(log)
	if err := mgr.Configure(manager.ReuseSingleFile, t.TempDir(), capture.NewFullScreen()); err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(log, mgr, time.Hour)
	t.Cleanup(func() {
		if sched.Running() {
			sched.Stop()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, log, mgr, sched, jrnl), mgr
}

// seedScreenshot writes a PNG into the manager's canonical slot.
func seedScreenshot(t *testing.T, mgr *manager.Manager, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	path := mgr.CanonicalPath()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rec.Body.String())
	}
	return body
}

func TestScreenshotNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/screenshot", http.NoBody))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if body := decodeJSON(t, rec); body["error"] != "No screenshot available." {
		t.Errorf("error = %q, want %q", body["error"], "No screenshot available.")
	}
}

func TestScreenshotServesLatest(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	seedScreenshot(t, mgr, 10, 10)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/screenshot", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	cfg, _, err := image.DecodeConfig(rec.Body)
	if err != nil {
		t.Fatalf("body is not a decodable image: %v", err)
	}
	if cfg.Width != 10 || cfg.Height != 10 {
		t.Errorf("image = %dx%d, want 10x10", cfg.Width, cfg.Height)
	}
}

func TestMetadata(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	seedScreenshot(t, mgr, 12, 8)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metadata", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := decodeJSON(t, rec)
	if body["dimensions"] != "12x8" {
		t.Errorf("dimensions = %q, want %q", body["dimensions"], "12x8")
	}
	if _, err := time.Parse(MetadataTimeFormat, body["timestamp"]); err != nil {
		t.Errorf("timestamp %q does not match format: %v", body["timestamp"], err)
	}
}

func TestMetadataNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metadata", http.NoBody))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/status", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeJSON(t, rec); body["status"] != "running" {
		t.Errorf("status body = %q, want %q", body["status"], "running")
	}
}

func TestShutdown(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/shutdown", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeJSON(t, rec); body["message"] != "Server shutting down..." {
		t.Errorf("message = %q, want %q", body["message"], "Server shutting down...")
	}

	select {
	case <-srv.ShutdownRequests():
	case <-time.After(time.Second):
		t.Error("shutdown request was not signalled")
	}
}

func TestShutdownRequiresPost(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/shutdown", http.NoBody))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestViewer(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/viewer", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	page := rec.Body.String()
	for _, want := range []string{"<img", "/screenshot", "setInterval"} {
		if !strings.Contains(page, want) {
			t.Errorf("viewer page missing %q", want)
		}
	}
}

func TestViewerRefreshMatchesInterval(t *testing.T) {
	log := testLogger()
	mgr := manager.New(log)
	if err := mgr.Configure(manager.ReuseSingleFile, t.TempDir(), capture.NewFullScreen()); err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(log, mgr, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := New(ctx, log, mgr, sched, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/viewer", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "}, 2000);") {
		t.Errorf("viewer should refresh every 2000 ms, page: %q", rec.Body.String())
	}
}

func TestThumbnail(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	seedScreenshot(t, mgr, 100, 60)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/thumbnail?width=50", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	cfg, _, err := image.DecodeConfig(rec.Body)
	if err != nil {
		t.Fatalf("thumbnail is not a decodable image: %v", err)
	}
	if cfg.Width != 50 || cfg.Height != 30 {
		t.Errorf("thumbnail = %dx%d, want 50x30 (aspect preserved)", cfg.Width, cfg.Height)
	}
}

func TestThumbnailInvalidWidth(t *testing.T) {
	srv, mgr := newTestServer(t, nil)
	seedScreenshot(t, mgr, 10, 10)

	for _, q := range []string{"width=0", "width=-5", "width=9999999", "width=abc"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/thumbnail?"+q, http.NoBody))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", q, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestSchedulerStartStop(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/scheduler/start", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeJSON(t, rec); body["scheduler"] != "running" {
		t.Errorf("scheduler = %q, want %q", body["scheduler"], "running")
	}
	if !srv.sched.Running() {
		t.Error("scheduler should be running after /scheduler/start")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/scheduler/stop", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := decodeJSON(t, rec); body["scheduler"] != "idle" {
		t.Errorf("scheduler = %q, want %q", body["scheduler"], "idle")
	}
	if srv.sched.Running() {
		t.Error("scheduler should be idle after /scheduler/stop")
	}
}

func TestCaptureBeforeConfigure(t *testing.T) {
	log := testLogger()
	mgr := manager.New(log) // deliberately unconfigured
	sched := scheduler.New(log, mgr, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := New(ctx, log, mgr, sched, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("POST", "/capture", http.NoBody))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if body := decodeJSON(t, rec); body["error"] == "" {
		t.Error("error body should explain the failure")
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/history", "/stats"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", path, http.NoBody))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusServiceUnavailable)
		}
	}
}

func TestHistoryAndStats(t *testing.T) {
	jrnl, err := journal.Open(t.TempDir()+"/snapview.db", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = jrnl.Close() })
	srv, _ := newTestServer(t, jrnl)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		jrnl.Record(ctx, capture.NewFullScreen(), &manager.Outcome{
			Path: "x.png", Width: 1, Height: 1,
			CapturedAt: time.Now().Add(time.Duration(i) * time.Second),
		}, nil)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/history?limit=2", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want %d", rec.Code, http.StatusOK)
	}
	var hist struct {
		Entries []journal.Entry `json:"entries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &hist); err != nil {
		t.Fatalf("history is not JSON: %v", err)
	}
	if len(hist.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(hist.Entries))
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/stats", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want %d", rec.Code, http.StatusOK)
	}
	var stats struct {
		Scheduler string        `json:"scheduler"`
		Mode      string        `json:"mode"`
		Captures  journal.Stats `json:"captures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("stats is not JSON: %v", err)
	}
	if stats.Scheduler != "idle" {
		t.Errorf("scheduler = %q, want %q", stats.Scheduler, "idle")
	}
	if stats.Mode != "Full Screen" {
		t.Errorf("mode = %q, want %q", stats.Mode, "Full Screen")
	}
	if stats.Captures.Total != 3 || stats.Captures.Succeeded != 3 {
		t.Errorf("captures = %+v, want 3 successes", stats.Captures)
	}
}

func TestHistoryInvalidLimit(t *testing.T) {
	jrnl, err := journal.Open(t.TempDir()+"/snapview.db", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = jrnl.Close() })
	srv, _ := newTestServer(t, jrnl)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/history?limit=-1", http.NoBody))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}

	req = httptest.NewRequest("GET", "/test", http.NoBody)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin on GET = %q, want %q", v, "*")
	}
}
