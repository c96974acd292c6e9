package capture

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/jab.report/internal/fsutil"
	"github.com/banshee-data/jab.report/internal/pose"
	"github.com/banshee-data/jab.report/internal/timeutil"
)

// PoseLogExtension is the conventional extension for pose logs.
const PoseLogExtension = ".poselog"

// PoseLogVersion is written into every log header.
const PoseLogVersion = "1.0"

// SampleSource is the subscription half of detector.SourceMux.
type SampleSource interface {
	SubscribeSamples(buffer int) (string, chan pose.Sample)
	UnsubscribeSamples(id string)
}

// PoseLogHeader is the first line of a pose log.
type PoseLogHeader struct {
	Version   string `json:"version"`
	CreatedNs int64  `json:"created_ns"`
	Source    string `json:"source"`
}

// PoseLogFooter is the last line of a completed pose log.
type PoseLogFooter struct {
	TotalFrames uint64 `json:"total_frames"`
	StartNs     int64  `json:"start_ns"`
	EndNs       int64  `json:"end_ns"`
}

// PoseLogRecorder records the detector's sample stream for the duration of
// a capture: a JSON header line, one line per sample in the detector wire
// format, then a {"footer":{...}} line.
type PoseLogRecorder struct {
	source     SampleSource
	sourceName string
	fs         fsutil.FileSystem
	clock      timeutil.Clock

	mu   sync.Mutex
	stop chan struct{}
}

// NewPoseLogRecorder records from source. A nil source makes every Start
// fail with ErrNoPipeline.
func NewPoseLogRecorder(source SampleSource, sourceName string, fs fsutil.FileSystem, clock timeutil.Clock) *PoseLogRecorder {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PoseLogRecorder{source: source, sourceName: sourceName, fs: fs, clock: clock}
}

// Start begins writing to outputPath. done receives the result once the log
// has been closed.
func (r *PoseLogRecorder) Start(outputPath string, done func(error)) error {
	if r.source == nil {
		return ErrNoPipeline
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return ErrAlreadyRecording
	}

	if err := fsutil.ClearStale(r.fs, outputPath); err != nil {
		return fmt.Errorf("remove stale log: %w", err)
	}
	f, err := r.fs.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create pose log: %w", err)
	}
	w := bufio.NewWriter(f)
	header := PoseLogHeader{Version: PoseLogVersion, CreatedNs: r.clock.Now().UnixNano(), Source: r.sourceName}
	if err := writeJSONLine(w, header); err != nil {
		f.Close()
		return err
	}

	id, samples := r.source.SubscribeSamples(64)
	stop := make(chan struct{})
	r.stop = stop
	logf("pose log started: %s", outputPath)

	go func() {
		footer, err := r.copySamples(w, samples, stop)
		r.source.UnsubscribeSamples(id)
		if err == nil {
			err = writeJSONLine(w, struct {
				Footer PoseLogFooter `json:"footer"`
			}{footer})
		}
		if err == nil {
			err = w.Flush()
		}
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close pose log: %w", cerr)
		}

		r.mu.Lock()
		r.stop = nil
		r.mu.Unlock()

		logf("pose log finished: %s (%d frames, err=%v)", outputPath, footer.TotalFrames, err)
		done(err)
	}()
	return nil
}

func (r *PoseLogRecorder) copySamples(w io.Writer, samples <-chan pose.Sample, stop <-chan struct{}) (PoseLogFooter, error) {
	var footer PoseLogFooter
	for {
		select {
		case <-stop:
			return footer, nil
		case s, ok := <-samples:
			if !ok {
				return footer, fmt.Errorf("sample source closed while recording")
			}
			line, err := pose.Encode(s)
			if err != nil {
				return footer, err
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return footer, fmt.Errorf("write pose log: %w", err)
			}
			ns := s.Time.UnixNano()
			if footer.TotalFrames == 0 {
				footer.StartNs = ns
			}
			footer.EndNs = ns
			footer.TotalFrames++
		}
	}
}

// Stop asks the recording to finish. It does not wait for done.
func (r *PoseLogRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == nil {
		return ErrNotRecording
	}
	select {
	case <-r.stop:
		return ErrNotRecording
	default:
		close(r.stop)
	}
	return nil
}

func writeJSONLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write pose log: %w", err)
	}
	return nil
}

// ReadPoseLog parses a pose log written by PoseLogRecorder.
func ReadPoseLog(rd io.Reader) (PoseLogHeader, []pose.Sample, *PoseLogFooter, error) {
	var header PoseLogHeader
	scan := bufio.NewScanner(rd)
	scan.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scan.Scan() {
		return header, nil, nil, fmt.Errorf("pose log: missing header")
	}
	if err := json.Unmarshal(scan.Bytes(), &header); err != nil {
		return header, nil, nil, fmt.Errorf("pose log header: %w", err)
	}

	var samples []pose.Sample
	for scan.Scan() {
		var probe struct {
			Footer *PoseLogFooter `json:"footer"`
		}
		if err := json.Unmarshal(scan.Bytes(), &probe); err == nil && probe.Footer != nil {
			return header, samples, probe.Footer, scan.Err()
		}
		s, err := pose.Decode(scan.Bytes(), time.Time{})
		if err != nil {
			return header, samples, nil, err
		}
		samples = append(samples, s)
	}
	return header, samples, nil, scan.Err()
}
