package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/jab.report/internal/fsutil"
)

// FFmpegOptions configure an FFmpegRecorder.
type FFmpegOptions struct {
	Binary      string   // default "ffmpeg"
	InputFormat string   // ffmpeg -f value, e.g. v4l2 or avfoundation
	Device      string   // capture device; empty means no pipeline
	ExtraArgs   []string // inserted between the input and the output path
	KillAfter   time.Duration
}

// FFmpegRecorder records the camera by running ffmpeg. Stop sends "q" on
// ffmpeg's stdin, which makes it finish the container cleanly, and kills the
// process if it has not exited within KillAfter.
type FFmpegRecorder struct {
	opts FFmpegOptions
	fs   fsutil.FileSystem

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	exit  chan struct{}
}

// NewFFmpegRecorder returns a recorder using opts.
func NewFFmpegRecorder(opts FFmpegOptions, fs fsutil.FileSystem) *FFmpegRecorder {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.KillAfter <= 0 {
		opts.KillAfter = 5 * time.Second
	}
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &FFmpegRecorder{opts: opts, fs: fs}
}

// Args returns the ffmpeg command line used to record to outputPath.
func (r *FFmpegRecorder) Args(outputPath string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	if r.opts.InputFormat != "" {
		args = append(args, "-f", r.opts.InputFormat)
	}
	args = append(args, "-i", r.opts.Device)
	args = append(args, r.opts.ExtraArgs...)
	return append(args, outputPath)
}

// Start launches ffmpeg writing to outputPath.
func (r *FFmpegRecorder) Start(outputPath string, done func(error)) error {
	if r.opts.Device == "" {
		return ErrNoPipeline
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return ErrAlreadyRecording
	}
	if err := fsutil.ClearStale(r.fs, outputPath); err != nil {
		return fmt.Errorf("remove stale output: %w", err)
	}

	cmd := exec.Command(r.opts.Binary, r.Args(outputPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start %s: %v", ErrNoPipeline, r.opts.Binary, err)
	}
	r.cmd, r.stdin, r.exit = cmd, stdin, make(chan struct{})
	exit := r.exit
	logf("ffmpeg recording %s (pid %d)", outputPath, cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		close(exit)
		r.mu.Lock()
		r.cmd, r.stdin = nil, nil
		r.mu.Unlock()

		if err != nil {
			err = fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
		} else if !r.fs.Exists(outputPath) {
			err = fmt.Errorf("ffmpeg exited cleanly without writing %s", outputPath)
		}
		done(err)
	}()
	return nil
}

// Stop asks ffmpeg to finish.
func (r *FFmpegRecorder) Stop() error {
	r.mu.Lock()
	cmd, stdin, exit := r.cmd, r.stdin, r.exit
	r.mu.Unlock()
	if cmd == nil {
		return ErrNotRecording
	}

	_, werr := io.WriteString(stdin, "q\n")
	stdin.Close()
	go func() {
		select {
		case <-exit:
		case <-time.After(r.opts.KillAfter):
			logf("ffmpeg did not exit after %s, killing", r.opts.KillAfter)
			cmd.Process.Kill()
		}
	}()
	if werr != nil && !errors.Is(werr, io.ErrClosedPipe) {
		return fmt.Errorf("signal ffmpeg: %w", werr)
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.max; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
