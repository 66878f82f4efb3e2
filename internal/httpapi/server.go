// Package httpapi exposes the capture component over HTTP: control routes,
// state as Server-Sent Events, the live camera preview and Prometheus metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/e7canasta/relief-capture/framegrid"
	"github.com/e7canasta/relief-capture/internal/statebus"
	"github.com/e7canasta/relief-capture/preview"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrNoCapture is returned when a route needs a capture and none exists.
var ErrNoCapture = errors.New("httpapi: no capture in progress")

// Factory builds a fresh component wired to the given callbacks.
type Factory func(onImageReady func(dataURL string), onClose func()) (*framegrid.Component, error)

// Options configures the server.
type Options struct {
	Factory        Factory
	Preview        *preview.Supplier // optional
	PreviewQuality int               // JPEG quality for preview frames (default 75)
}

// Server owns at most one live component at a time. A closed component is
// replaced on the next POST /v1/capture.
type Server struct {
	opts   Options
	router chi.Router

	mu       sync.Mutex
	current  *framegrid.Component
	accepted string // data URL of the last accepted image
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Factory == nil {
		return nil, fmt.Errorf("httpapi: factory is required")
	}
	if opts.PreviewQuality <= 0 || opts.PreviewQuality > 100 {
		opts.PreviewQuality = 75
	}

	s := &Server{opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/capture", func(r chi.Router) {
		r.Get("/", s.handleSnapshot)
		r.Post("/", s.handleStart)
		r.Delete("/", s.handleClose)
		r.Post("/retry", s.handleRetry)
		r.Post("/accept", s.handleAccept)
		r.Get("/events", s.handleEvents)
		r.Get("/preview.jpg", s.handlePreviewJPEG)
		r.Get("/preview.mjpeg", s.handlePreviewMJPEG)
	})

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close dismisses the live component, if any.
func (s *Server) Close() error {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

func (s *Server) component() *framegrid.Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	c := s.component()
	if c == nil {
		writeJSON(w, http.StatusOK, framegrid.Snapshot{Phase: framegrid.PhaseIdle, Actions: []framegrid.Action{}})
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.current != nil && !s.current.Done() {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, framegrid.ErrAlreadyStarted)
		return
	}

	c, err := s.opts.Factory(
		func(dataURL string) {
			s.mu.Lock()
			s.accepted = dataURL
			s.mu.Unlock()
		},
		func() { slog.Debug("httpapi: capture dismissed") },
	)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.current = c
	s.accepted = ""
	s.mu.Unlock()

	if err := c.Start(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, _ *http.Request) {
	c := s.component()
	if c == nil {
		writeError(w, http.StatusNotFound, ErrNoCapture)
		return
	}
	if err := c.Retry(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, c.Snapshot())
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	c := s.component()
	if c == nil {
		writeError(w, http.StatusNotFound, ErrNoCapture)
		return
	}
	if err := c.Accept(r.Context()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	s.mu.Lock()
	url := s.accepted
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"image_url": url})
}

func (s *Server) handleClose(w http.ResponseWriter, _ *http.Request) {
	c := s.component()
	if c == nil {
		writeError(w, http.StatusNotFound, ErrNoCapture)
		return
	}
	_ = c.Close()
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleEvents streams snapshots as Server-Sent Events until the component
// closes or the client goes away. Slow clients only see the latest state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	c := s.component()
	if c == nil {
		writeError(w, http.StatusNotFound, ErrNoCapture)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	id := "sse-" + uuid.New().String()
	updates, err := c.Subscribe(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer func() { _ = c.Unsubscribe(id) }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		snap, err := updates.Receive(r.Context())
		if err != nil {
			return
		}
		data, err := json.Marshal(snap)
		if err != nil {
			slog.Error("httpapi: marshal snapshot", "error", err)
			return
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handlePreviewJPEG(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Preview == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("preview disabled"))
		return
	}
	frame, ok := s.opts.Preview.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no preview frame"))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := frame.EncodeJPEG(w, s.opts.PreviewQuality); err != nil {
		slog.Warn("httpapi: encode preview", "error", err)
	}
}

const mjpegBoundary = "frame"

// handlePreviewMJPEG streams preview frames as multipart/x-mixed-replace.
// Each viewer gets its own mailbox; a slow viewer skips frames.
func (s *Server) handlePreviewMJPEG(w http.ResponseWriter, r *http.Request) {
	if s.opts.Preview == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("preview disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	id := "mjpeg-" + uuid.New().String()
	next := s.opts.Preview.Subscribe(id)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.Context().Done():
		case <-done:
		}
		s.opts.Preview.Unsubscribe(id)
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		frame := next()
		if frame == nil {
			return
		}
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", mjpegBoundary); err != nil {
			return
		}
		if err := frame.EncodeJPEG(w, s.opts.PreviewQuality); err != nil {
			slog.Debug("httpapi: mjpeg viewer gone", "viewer", id, "error", err)
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, framegrid.ErrAlreadyStarted),
		errors.Is(err, framegrid.ErrNotReady),
		errors.Is(err, framegrid.ErrClosed),
		errors.Is(err, statebus.ErrBusClosed):
		return http.StatusConflict
	case errors.Is(err, ErrNoCapture):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= 500 {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "httpapi: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
