// Package api serves the live guidance state, the session journal and the
// training analytics over HTTP, and the guidance watch stream over gRPC.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/jab.report/internal/db"
	"github.com/banshee-data/jab.report/internal/guidance"
	"github.com/banshee-data/jab.report/internal/monitoring"
	"github.com/banshee-data/jab.report/internal/timeutil"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Guidance is the control surface of the guidance loop.
type Guidance interface {
	Snapshot() guidance.Snapshot
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Abort(ctx context.Context, reason string) error
	StopRecording(ctx context.Context) error
	Subscribe() (string, <-chan guidance.Event)
	Unsubscribe(id string)
}

// Store is the persisted session journal and feedback.
type Store interface {
	ListSessions(ctx context.Context, limit int) ([]db.CaptureSession, error)
	GetSession(ctx context.Context, id string) (db.CaptureSession, error)
	SessionTransitions(ctx context.Context, id string) ([]db.Transition, error)
	RecordFeedback(ctx context.Context, f *db.Feedback) error
	ListFeedback(ctx context.Context, limit int) ([]db.Feedback, error)
}

type Server struct {
	guidance      Guidance
	store         Store
	clock         timeutil.Clock
	location      *time.Location
	recordingsDir string
}

func NewServer(g Guidance, store Store) *Server {
	return &Server{
		guidance: g,
		store:    store,
		clock:    timeutil.RealClock{},
		location: time.Local,
	}
}

// SetClock replaces the clock used for feedback timestamps and analytics.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
}

// SetTimezone sets the zone that calendar days are counted in when a request
// does not pass ?tz=.
func (s *Server) SetTimezone(tz string) error {
	loc, err := timeutil.LoadTimezone(tz)
	if err != nil {
		return err
	}
	s.location = loc
	return nil
}

// SetRecordingsDir enables recording downloads. Only files under dir are
// served.
func (s *Server) SetRecordingsDir(dir string) {
	s.recordingsDir = dir
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/guidance", s.showGuidance)
	mux.HandleFunc("POST /api/guidance/start", s.startGuidance)
	mux.HandleFunc("POST /api/guidance/stop", s.stopGuidance)
	mux.HandleFunc("POST /api/guidance/abort", s.abortGuidance)
	mux.HandleFunc("POST /api/guidance/stop-recording", s.stopRecording)
	mux.HandleFunc("GET /api/guidance/events", s.streamGuidanceEvents)

	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}/transitions", s.listTransitions)
	mux.HandleFunc("GET /api/sessions/{id}/recording", s.downloadRecording)
	mux.HandleFunc("/api/feedback", s.handleFeedback)

	mux.HandleFunc("GET /api/history/stats", s.showHistoryStats)
	mux.HandleFunc("GET /api/history/badges", s.showBadges)
	mux.HandleFunc("GET /api/history/feedback", s.listHistoryFeedback)

	mux.HandleFunc("GET /charts/scores", s.scoreChart)
	mux.HandleFunc("GET /charts/scores.png", s.scoreChartPNG)
	return mux
}

// controlStatus maps a guidance control error onto an HTTP status.
func controlStatus(err error) int {
	switch {
	case errors.Is(err, guidance.ErrMachineStopped), errors.Is(err, guidance.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, guidance.ErrRunnerClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// now returns the current time in the zone selected by ?tz=, or the
// server's zone.
func (s *Server) now(r *http.Request) (time.Time, error) {
	loc := s.location
	if tz := r.URL.Query().Get("tz"); tz != "" {
		l, err := timeutil.LoadTimezone(tz)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	return s.clock.Now().In(loc), nil
}

// queryLimit parses ?limit=, defaulting to def.
func queryLimit(r *http.Request, def int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid 'limit' parameter")
	}
	return n, nil
}
