package guidance

import "time"

// EventKind classifies an Event.
type EventKind string

const (
	EventAttemptStarted      EventKind = "attempt_started"
	EventTransition          EventKind = "transition"
	EventTick                EventKind = "tick" // countdown or recording progress advanced
	EventRecorderStartFailed EventKind = "recorder_start_failed"
	EventCompleted           EventKind = "completed"
	EventAborted             EventKind = "aborted"
	EventFinalizeFailed      EventKind = "finalize_failed"
)

// Event describes something the machine did. OutputPath is set on
// EventCompleted. FinalTurnAngle is the smoothed angle the attempt ended
// with and is set on EventCompleted, EventAborted and EventFinalizeFailed;
// the snapshot of an abort is taken after the window is reset.
type Event struct {
	Kind           EventKind `json:"kind"`
	At             time.Time `json:"at"`
	AttemptID      string    `json:"attempt_id"`
	From           State     `json:"from,omitempty"`
	To             State     `json:"to,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OutputPath     string    `json:"output_path,omitempty"`
	FinalTurnAngle float64   `json:"final_turn_angle,omitempty"`
	Snapshot       Snapshot  `json:"snapshot"`
}

// Snapshot is everything a presentation layer needs to render the capture
// screen.
type Snapshot struct {
	State            State   `json:"state"`
	AttemptID        string  `json:"attempt_id"`
	Stopped          bool    `json:"stopped"`
	TurnAngle        float64 `json:"turn_angle"`
	HasTurnAngle     bool    `json:"has_turn_angle"`
	CountdownTicks   int     `json:"countdown_ticks"`
	CountdownDisplay int     `json:"countdown_display,omitempty"` // N..1 while in Countdown
	Progress         float64 `json:"progress"`
	OutputPath       string  `json:"output_path,omitempty"`
	Completed        bool    `json:"completed"`
}

// RecorderResult is a recorder's completion report for one attempt.
type RecorderResult struct {
	AttemptID string
	Err       error
}
