package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/banshee-data/jab.report/internal/db"
	"github.com/banshee-data/jab.report/internal/httputil"
	"github.com/banshee-data/jab.report/internal/security"
)

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 50)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list sessions: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

// session loads the {id} path session, writing 404 or 500 on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (db.CaptureSession, bool) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, "session not found")
			return db.CaptureSession{}, false
		}
		httputil.InternalServerError(w, err.Error())
		return db.CaptureSession{}, false
	}
	return sess, true
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	transitions, err := s.store.SessionTransitions(r.Context(), sess.ID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list transitions: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, transitions)
}

// FeedbackRequest records a scored analysis for a session. Completed
// defaults to true.
type FeedbackRequest struct {
	SessionID         string  `json:"session_id"`
	Score             float64 `json:"score"`
	Velocity          string  `json:"velocity"`
	Power             string  `json:"power"`
	KnockoutPotential string  `json:"knockout_potential"`
	Completed         *bool   `json:"completed"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listFeedback(w, r)
	case http.MethodPost:
		s.recordFeedback(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 0)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	items, err := s.store.ListFeedback(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list feedback: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (s *Server) recordFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SessionID == "" {
		httputil.BadRequest(w, "session_id is required")
		return
	}
	if req.Score < 0 || req.Score > 100 {
		httputil.BadRequest(w, "score must be between 0 and 100")
		return
	}
	f := &db.Feedback{
		SessionID:         req.SessionID,
		Score:             req.Score,
		Velocity:          req.Velocity,
		Power:             req.Power,
		KnockoutPotential: req.KnockoutPotential,
		Completed:         req.Completed == nil || *req.Completed,
		CreatedAt:         s.clock.Now().UTC(),
	}
	if err := s.store.RecordFeedback(r.Context(), f); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			httputil.NotFound(w, "session not found")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to record feedback: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, f)
}

// downloadRecording serves a completed session's recording as an
// attachment. Paths outside the recordings directory are refused.
func (s *Server) downloadRecording(w http.ResponseWriter, r *http.Request) {
	if s.recordingsDir == "" {
		httputil.NotFound(w, "recording downloads are disabled")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if sess.OutputPath == "" {
		httputil.NotFound(w, "session has no recording")
		return
	}
	if err := security.ValidatePathWithinDirectory(sess.OutputPath, s.recordingsDir); err != nil {
		if errors.Is(err, security.ErrOutsideDirectory) {
			httputil.WriteJSONError(w, http.StatusForbidden, "recording is outside the recordings directory")
			return
		}
		httputil.NotFound(w, "recording not found")
		return
	}
	f, err := os.Open(sess.OutputPath)
	if err != nil {
		httputil.NotFound(w, "recording not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		httputil.NotFound(w, "recording not found")
		return
	}
	name := security.SanitizeFilename(filepath.Base(sess.OutputPath))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
