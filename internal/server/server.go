package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/nfnt/resize"

	"github.com/snapview/snapview/internal/errors"
	"github.com/snapview/snapview/internal/journal"
	"github.com/snapview/snapview/internal/manager"
	"github.com/snapview/snapview/internal/scheduler"
	"github.com/snapview/snapview/internal/trace"
)

// CaptureMessage is broadcast to WebSocket clients after each capture.
type CaptureMessage struct {
	Type       string `json:"type"`
	Path       string `json:"path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	CapturedAt string `json:"captured_at"`
}

// Server exposes the capture service over HTTP and WebSocket.
type Server struct {
	log     *slog.Logger
	mgr     *manager.Manager
	sched   *scheduler.Scheduler
	journal *journal.Journal // nil disables /history and /stats

	shutdownCh chan struct{}

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server and starts the outcome broadcaster. jrnl may be nil.
func New(ctx context.Context, log *slog.Logger, mgr *manager.Manager, sched *scheduler.Scheduler, jrnl *journal.Journal) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:        log,
		mgr:        mgr,
		sched:      sched,
		journal:    jrnl,
		shutdownCh: make(chan struct{}, 1),
		conns:      make(map[*websocket.Conn]struct{}),
	}

	go s.broadcastOutcomes(ctx)

	return s
}

// ShutdownRequests signals once when a client posts /shutdown.
func (s *Server) ShutdownRequests() <-chan struct{} {
	return s.shutdownCh
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Wire surface
	mux.HandleFunc("GET /screenshot", s.handleScreenshot)
	mux.HandleFunc("GET /metadata", s.handleMetadata)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /viewer", s.handleViewer)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)

	// Control and query surface
	mux.HandleFunc("POST /capture", s.handleCaptureNow)
	mux.HandleFunc("POST /scheduler/start", s.handleSchedulerStart)
	mux.HandleFunc("POST /scheduler/stop", s.handleSchedulerStop)
	mux.HandleFunc("GET /thumbnail", s.handleThumbnail)
	mux.HandleFunc("GET /history", s.handleHistory)
	mux.HandleFunc("GET /stats", s.handleStats)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// latestPath resolves the image the read endpoints serve: the most recent
// outcome if its file still exists, else the canonical slot left over from
// a previous run.
func (s *Server) latestPath() (string, bool) {
	if o := s.mgr.Latest(); o != nil {
		if _, err := os.Stat(o.Path); err == nil {
			return o.Path, true
		}
	}
	p := s.mgr.CanonicalPath()
	if p == "" {
		return "", false
	}
	if _, err := os.Stat(p); err == nil {
		return p, true
	}
	return "", false
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	path, ok := s.latestPath()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "No screenshot available.")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	path, ok := s.latestPath()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "No screenshot available.")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodePersistence, "cannot stat screenshot"))
		return
	}
	width, height, err := pngDimensions(path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"timestamp":  info.ModTime().Format(MetadataTimeFormat),
		"dimensions": fmt.Sprintf("%dx%d", width, height),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	trace.Logger(r.Context()).Info("shutdown requested", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Server shutting down..."})

	select {
	case s.shutdownCh <- struct{}{}:
	default:
	}
}

func (s *Server) handleCaptureNow(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.sched.CaptureNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleSchedulerStart(w http.ResponseWriter, r *http.Request) {
	// The run loop must outlive this request.
	s.sched.Start(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"scheduler": "running"})
}

func (s *Server) handleSchedulerStop(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"scheduler": "idle"})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	path, ok := s.latestPath()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "No screenshot available.")
		return
	}

	width := DefaultThumbnailWidth
	if q := r.URL.Query().Get("width"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > MaxThumbnailWidth {
			writeError(w, errors.Newf(errors.CodeConfiguration, "width must be in [1, %d]", MaxThumbnailWidth))
			return
		}
		width = n
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodePersistence, "cannot open screenshot"))
		return
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		writeError(w, errors.Wrap(err, errors.CodePersistence, "cannot decode screenshot"))
		return
	}

	thumb := resize.Resize(uint(width), 0, img, resize.Lanczos3)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, thumb); err != nil {
		s.log.Debug("thumbnail write aborted", "error", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, errors.New(errors.CodeUnavailable, "capture journal is disabled"))
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, errors.New(errors.CodeConfiguration, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, errors.New(errors.CodeUnavailable, "capture journal is disabled"))
		return
	}

	stats, err := s.journal.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	state := "idle"
	if s.sched.Running() {
		state = "running"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduler": state,
		"mode":      s.mgr.Target().Kind.String(),
		"captures":  stats,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	log := trace.Logger(r.Context())
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Clients only listen; drain until they hang up.
	for {
		var discard json.RawMessage
		if err := wsjson.Read(r.Context(), conn, &discard); err != nil {
			log.Debug("websocket closed", "error", err)
			return
		}
	}
}

func (s *Server) broadcastOutcomes(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case outcome := <-s.sched.Outcomes():
			msg := CaptureMessage{
				Type:       "capture",
				Path:       outcome.Path,
				Width:      outcome.Width,
				Height:     outcome.Height,
				CapturedAt: outcome.CapturedAt.Format(MetadataTimeFormat),
			}

			s.mu.RLock()
			for conn := range s.conns {
				go func(c *websocket.Conn) {
					_ = wsjson.Write(ctx, c, msg)
				}(conn)
			}
			s.mu.RUnlock()
		}
	}
}

func pngDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CodePersistence, "cannot open screenshot")
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.CodePersistence, "cannot decode screenshot header")
	}
	return cfg.Width, cfg.Height, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a typed error onto the wire: its message under "error"
// and its code's HTTP status.
func writeError(w http.ResponseWriter, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		writeJSONError(w, appErr.HTTPStatus(), appErr.Message)
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}
