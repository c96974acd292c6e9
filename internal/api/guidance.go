package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/jab.report/internal/guidance"
	"github.com/banshee-data/jab.report/internal/httputil"
)

func (s *Server) showGuidance(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.guidance.Snapshot())
}

func (s *Server) control(w http.ResponseWriter, err error) {
	if err != nil {
		httputil.WriteJSONError(w, controlStatus(err), err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.guidance.Snapshot())
}

func (s *Server) startGuidance(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.guidance.Start(r.Context()))
}

func (s *Server) stopGuidance(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.guidance.Stop(r.Context()))
}

func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	s.control(w, s.guidance.StopRecording(r.Context()))
}

type abortRequest struct {
	Reason string `json:"reason"`
}

// abortGuidance takes the reason from a JSON body or a "reason" form value.
func (s *Server) abortGuidance(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	} else {
		req.Reason = r.FormValue("reason")
	}
	if req.Reason == "" {
		req.Reason = "user aborted"
	}
	s.control(w, s.guidance.Abort(r.Context(), req.Reason))
}

// streamGuidanceEvents is a Server-Sent Events stream. The first message is
// the current snapshot; each guidance event follows as it happens.
func (s *Server) streamGuidanceEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, events := s.guidance.Subscribe()
	defer s.guidance.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSE(w, "snapshot", s.guidance.Snapshot()); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSE(w, string(ev.Kind), ev); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

var _ Guidance = (*guidance.Runner)(nil)
