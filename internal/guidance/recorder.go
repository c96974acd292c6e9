package guidance

import "errors"

// Recorder is the downstream media recorder. Start begins writing to
// outputPath and returns once recording is underway; done is invoked exactly
// once, from any goroutine, when the output has been finalized or the
// recorder has failed. Stop requests finalization and does not wait for done.
type Recorder interface {
	Start(outputPath string, done func(error)) error
	Stop() error
}

var (
	// ErrNotRecording is returned by StopRecording outside the Recording state.
	ErrNotRecording = errors.New("guidance: not recording")
	// ErrOutputMissing reports a recorder that claimed success without
	// leaving a file behind.
	ErrOutputMissing = errors.New("guidance: output file missing after stop")
	// ErrMachineStopped is returned by control calls after Stop.
	ErrMachineStopped = errors.New("guidance: machine stopped")
	// ErrNoRecorder is reported when the machine has no recorder attached.
	ErrNoRecorder = errors.New("guidance: no recorder attached")
)
