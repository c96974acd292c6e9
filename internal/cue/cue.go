// Package cue plays the short audio prompts that accompany capture guidance.
package cue

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/banshee-data/jab.report/internal/monitoring"
)

// Cue identifies one audio prompt.
type Cue string

const (
	FullBody  Cue = "full_body" // "show your full body"
	TurnBody  Cue = "turn_body" // "turn your body"
	Countdown Cue = "countdown" // one countdown beep
	Start     Cue = "start"     // recording starts
)

// All lists every cue in playback order.
var All = []Cue{FullBody, TurnBody, Countdown, Start}

// Player plays cues. Play must not block for the duration of the sound.
type Player interface {
	Play(c Cue) error
	// StopAll silences anything currently playing.
	StopAll()
}

var logf = monitoring.Component("cue")

// LogPlayer only logs cues. Used headless and in dev mode.
type LogPlayer struct{}

func (LogPlayer) Play(c Cue) error {
	logf("play %s", c)
	return nil
}

func (LogPlayer) StopAll() {}

// CommandPlayer plays cues by running an external audio player binary
// (aplay, afplay, paplay) on <Dir>/<cue><Ext>.
type CommandPlayer struct {
	Binary string
	Dir    string
	Ext    string

	mu      sync.Mutex
	running map[*exec.Cmd]context.CancelFunc
}

// NewCommandPlayer checks that a sound file exists for every cue.
func NewCommandPlayer(binary, dir, ext string) (*CommandPlayer, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("audio player %q not found: %w", binary, err)
	}
	for _, c := range All {
		path := filepath.Join(dir, string(c)+ext)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("missing sound for cue %s: %w", c, err)
		}
	}
	return &CommandPlayer{
		Binary:  binary,
		Dir:     dir,
		Ext:     ext,
		running: make(map[*exec.Cmd]context.CancelFunc),
	}, nil
}

// Play starts the player process and returns once it is running.
func (p *CommandPlayer) Play(c Cue) error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, p.Binary, filepath.Join(p.Dir, string(c)+p.Ext))
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to play cue %s: %w", c, err)
	}

	p.mu.Lock()
	p.running[cmd] = cancel
	p.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		delete(p.running, cmd)
		p.mu.Unlock()
		cancel()
	}()
	return nil
}

// StopAll kills every player process still running.
func (p *CommandPlayer) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for cmd, cancel := range p.running {
		cancel()
		delete(p.running, cmd)
	}
}

// Recorder is a Player that remembers what it was asked to do.
type Recorder struct {
	mu      sync.Mutex
	played  []Cue
	stopped int
	Err     error
}

func (r *Recorder) Play(c Cue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.played = append(r.played, c)
	return nil
}

func (r *Recorder) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

// Played returns the cues played so far, in order.
func (r *Recorder) Played() []Cue {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Cue(nil), r.played...)
}

// Count returns how many times c was played.
func (r *Recorder) Count(c Cue) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.played {
		if p == c {
			n++
		}
	}
	return n
}

// Stops returns how many times StopAll was called.
func (r *Recorder) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
