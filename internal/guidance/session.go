package guidance

import (
	"math"
	"time"
)

// RecordingSession tracks one countdown → record → finalize cycle.
type RecordingSession struct {
	ID             string
	StartedAt      time.Time
	CountdownTicks int     // ticks elapsed across settle and countdown phases
	Progress       float64 // recording presentation progress in [0, 1]
	OutputPath     string

	progressSteps int
}

// advance moves the progress forward by one step and reports whether the
// recording has reached its nominal end.
func (s *RecordingSession) advance(step float64) bool {
	s.progressSteps++
	s.Progress = math.Min(1, float64(s.progressSteps)*step)
	if s.Progress >= 1-1e-9 {
		s.Progress = 1
		return true
	}
	return false
}
