package detector

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/jab.report/internal/timeutil"
)

// pacedPort is a Porter whose read side is fed one line per interval by a
// generator function. Writes are kept as commands.
type pacedPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	commands []string
	onCmd    func(string)

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// newPacedPort starts a goroutine that calls next every interval and writes
// the returned line. The stream ends when next reports false.
func newPacedPort(clock timeutil.Clock, interval time.Duration, next func(now time.Time) ([]byte, bool)) *pacedPort {
	r, w := io.Pipe()
	p := &pacedPort{r: r, w: w, stop: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(p.done)
		ticker := clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				w.Close()
				return
			case now := <-ticker.C():
				line, ok := next(now)
				if !ok {
					w.Close()
					return
				}
				if _, err := w.Write(append(line, '\n')); err != nil {
					return
				}
			}
		}
	}()
	return p
}

func (p *pacedPort) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write records a command. Commands never fail.
func (p *pacedPort) Write(b []byte) (int, error) {
	cmd := strings.TrimSpace(string(b))
	p.mu.Lock()
	p.commands = append(p.commands, cmd)
	fn := p.onCmd
	p.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
	return len(b), nil
}

// Commands returns every command written so far.
func (p *pacedPort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

func (p *pacedPort) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	p.r.Close()
	<-p.done
	return nil
}

// frameInterval converts a frame rate to a ticker period.
func frameInterval(fps float64) time.Duration {
	if fps <= 0 {
		fps = 30
	}
	return time.Duration(float64(time.Second) / fps)
}
