// Package detector connects to an external pose detector and fans its
// keypoint stream out to subscribers. The detector writes one JSON object per
// line; commands are written back as newline terminated text.
package detector

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/jab.report/internal/monitoring"
	"github.com/banshee-data/jab.report/internal/pose"
	"github.com/banshee-data/jab.report/internal/timeutil"
)

var ErrWriteFailed = errors.New("failed to write to detector port")

var logf = monitoring.Component("detector")

// maxLineBytes bounds one detector line. A COCO frame is well under 2KB.
const maxLineBytes = 64 * 1024

// Stats counts what the mux has read so far.
type Stats struct {
	Lines        uint64 `json:"lines"`
	Samples      uint64 `json:"samples"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// SourceMux multiplexes one detector port to many subscribers. Raw lines go
// to line subscribers (debug tail); decoded samples go to sample
// subscribers (the guidance loop, the pose log recorder).
type SourceMux[T Porter] struct {
	port  T
	clock timeutil.Clock

	subscriberMu      sync.Mutex
	lineSubscribers   map[string]chan string
	sampleSubscribers map[string]chan pose.Sample
	closing           bool

	commandMu sync.Mutex

	lines, samples, decodeErrors atomic.Uint64
}

// NewSourceMux creates a SourceMux reading from port.
func NewSourceMux[T Porter](port T) *SourceMux[T] {
	return &SourceMux[T]{
		port:              port,
		clock:             timeutil.RealClock{},
		lineSubscribers:   make(map[string]chan string),
		sampleSubscribers: make(map[string]chan pose.Sample),
	}
}

// SetClock replaces the clock used to timestamp samples without a "t" field.
func (s *SourceMux[T]) SetClock(c timeutil.Clock) {
	s.clock = c
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel of raw detector lines.
func (s *SourceMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	s.lineSubscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a line subscriber.
func (s *SourceMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.lineSubscribers[id]; ok {
		close(ch)
		delete(s.lineSubscribers, id)
	}
}

// SubscribeSamples returns a channel of decoded samples. buffer sets how
// many samples may queue before new ones are dropped for this subscriber.
func (s *SourceMux[T]) SubscribeSamples(buffer int) (string, chan pose.Sample) {
	id := randomID()
	ch := make(chan pose.Sample, buffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	s.sampleSubscribers[id] = ch
	return id, ch
}

// UnsubscribeSamples removes a sample subscriber.
func (s *SourceMux[T]) UnsubscribeSamples(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.sampleSubscribers[id]; ok {
		close(ch)
		delete(s.sampleSubscribers, id)
	}
}

// SendCommand writes a newline terminated command to the detector.
func (s *SourceMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Stats returns the running counters.
func (s *SourceMux[T]) Stats() Stats {
	return Stats{
		Lines:        s.lines.Load(),
		Samples:      s.samples.Load(),
		DecodeErrors: s.decodeErrors.Load(),
	}
}

// Monitor reads lines from the port until ctx is cancelled, the port reaches
// EOF or a read fails. EOF is not an error.
func (s *SourceMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	// The blocking Scan runs on its own goroutine so cancellation is not
	// held up by a quiet port.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			line := append([]byte(nil), scan.Bytes()...)
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
				}
				logf("port closed after %d lines", s.lines.Load())
				return nil
			}
			if s.isClosing() {
				return nil
			}
			s.dispatch(line)
		}
	}
}

func (s *SourceMux[T]) isClosing() bool {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	return s.closing
}

func (s *SourceMux[T]) dispatch(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	s.lines.Add(1)

	sample, err := pose.Decode(line, s.clock.Now())
	if err != nil {
		if n := s.decodeErrors.Add(1); n == 1 || n%100 == 0 {
			logf("decode error (%d so far): %v", n, err)
		}
	} else {
		s.samples.Add(1)
	}

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.lineSubscribers {
		select {
		case ch <- string(line):
		default:
		}
	}
	if err != nil {
		return
	}
	for _, ch := range s.sampleSubscribers {
		select {
		case ch <- sample:
		default:
			// a slow subscriber misses frames rather than stalling detection
		}
	}
}

// Close closes every subscriber channel and the port.
func (s *SourceMux[T]) Close() error {
	s.subscriberMu.Lock()
	if s.closing {
		s.subscriberMu.Unlock()
		return nil
	}
	s.closing = true
	for id, ch := range s.lineSubscribers {
		close(ch)
		delete(s.lineSubscribers, id)
	}
	for id, ch := range s.sampleSubscribers {
		close(ch)
		delete(s.sampleSubscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

// AttachAdminRoutes registers detector debug endpoints on mux under /debug/.
// tsweb restricts them to loopback and tailnet callers.
func (s *SourceMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("detector-stats", "pose detector line/sample counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Stats())
	})

	// Write a command to the detector.
	debug.HandleSilentFunc("detector-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to detector", command))
	})

	// Server-Sent Events of raw detector lines.
	debug.HandleSilentFunc("detector-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
