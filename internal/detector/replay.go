package detector

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/jab.report/internal/timeutil"
)

// ReplayPort plays back a recorded keypoint stream (one JSON object per
// line) at a fixed frame rate.
type ReplayPort struct {
	*pacedPort
	src io.Closer
}

// ReplayOptions control playback.
type ReplayOptions struct {
	FPS   float64
	Loop  bool // rewind at EOF; requires a seekable source
	Clock timeutil.Clock
}

// OpenReplay opens path for playback. "-" replays stdin.
func OpenReplay(path string, opts ReplayOptions) (*ReplayPort, error) {
	if path == "-" {
		if opts.Loop {
			return nil, fmt.Errorf("cannot loop replay of stdin")
		}
		return NewReplayPort(io.NopCloser(os.Stdin), opts), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	return NewReplayPort(f, opts), nil
}

// NewReplayPort plays back src. When opts.Loop is set src must implement
// io.Seeker.
func NewReplayPort(src io.ReadCloser, opts ReplayOptions) *ReplayPort {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	seeker, _ := src.(io.Seeker)

	var mu sync.Mutex
	scan := bufio.NewScanner(src)
	scan.Buffer(make([]byte, 0, 4096), maxLineBytes)

	next := func(time.Time) ([]byte, bool) {
		mu.Lock()
		defer mu.Unlock()
		rewound := false
		for {
			for scan.Scan() {
				line := bytes.TrimSpace(scan.Bytes())
				if len(line) == 0 || line[0] == '#' {
					continue
				}
				return append([]byte(nil), line...), true
			}
			if err := scan.Err(); err != nil {
				logf("replay read: %v", err)
				return nil, false
			}
			if !opts.Loop || seeker == nil || rewound {
				return nil, false
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				logf("replay rewind: %v", err)
				return nil, false
			}
			rewound = true
			scan = bufio.NewScanner(src)
			scan.Buffer(make([]byte, 0, 4096), maxLineBytes)
		}
	}

	return &ReplayPort{pacedPort: newPacedPort(clock, frameInterval(opts.FPS), next), src: src}
}

// Close stops playback and closes the source.
func (p *ReplayPort) Close() error {
	p.pacedPort.Close()
	return p.src.Close()
}
