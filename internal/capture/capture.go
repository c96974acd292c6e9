// Package capture implements the media recorders the guidance machine
// drives: an ffmpeg camera recorder and a pose log recorder.
package capture

import (
	"errors"

	"github.com/banshee-data/jab.report/internal/monitoring"
)

var (
	// ErrNoPipeline means there is nothing to record from: no capture device
	// configured, or no sample source attached.
	ErrNoPipeline = errors.New("capture: no active capture pipeline")
	// ErrAlreadyRecording is returned by Start while a recording is running.
	ErrAlreadyRecording = errors.New("capture: already recording")
	// ErrNotRecording is returned by Stop when nothing is running.
	ErrNotRecording = errors.New("capture: not recording")
)

var logf = monitoring.Component("capture")
